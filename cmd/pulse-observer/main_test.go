package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func TestParseServeFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    serveOptions
		wantErr bool
	}{
		{"none", nil, serveOptions{}, false},
		{"all", []string{"-c", "o.yaml", "--http", ":8080", "--log-level", "debug"},
			serveOptions{configPath: "o.yaml", httpAddr: ":8080", logLevel: "debug"}, false},
		{"equals form", []string{"--config=o.yaml"}, serveOptions{configPath: "o.yaml"}, false},
		{"unknown flag", []string{"--stdio"}, serveOptions{}, true},
		{"stray argument", []string{"now"}, serveOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServeFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseServeFlags_Help(t *testing.T) {
	_, err := parseServeFlags([]string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("err = %v, want pflag.ErrHelp", err)
	}
}

func TestRunSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := runSchema(nil, &buf); err != nil {
		t.Fatalf("runSchema: %v", err)
	}
	var doc struct {
		Tables []struct {
			Name        string   `yaml:"name"`
			AllColumns  []string `yaml:"all_columns"`
			SafeColumns []string `yaml:"safe_columns"`
		} `yaml:"tables"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if len(doc.Tables) == 0 {
		t.Fatal("no tables")
	}
	for _, tbl := range doc.Tables {
		if len(tbl.SafeColumns) == 0 || len(tbl.AllColumns) < len(tbl.SafeColumns) {
			t.Errorf("table %s: safe=%v all=%v", tbl.Name, tbl.SafeColumns, tbl.AllColumns)
		}
	}

	buf.Reset()
	if err := runSchema([]string{"--safe-only"}, &buf); err != nil {
		t.Fatalf("runSchema --safe-only: %v", err)
	}
	doc.Tables = nil
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	for _, tbl := range doc.Tables {
		if len(tbl.AllColumns) != 0 {
			t.Errorf("table %s: --safe-only still lists %v", tbl.Name, tbl.AllColumns)
		}
	}
}

func TestRunConfig_Redacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observer.yaml")
	content := "storage:\n  driver: postgres\n  database_url: postgres://observer:hunter2@db/pulse\nbrain:\n  repo: pulse-os/brain\n  token: ghp_secret\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := runConfig([]string{"--config", path}, &buf); err != nil {
		t.Fatalf("runConfig: %v", err)
	}
	out := buf.String()
	for _, secret := range []string{"hunter2", "ghp_secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %q:\n%s", secret, out)
		}
	}
	if !strings.Contains(out, "pulse-os/brain") || !strings.Contains(out, "REDACTED") {
		t.Errorf("output = %s", out)
	}
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://observer:hunter2@db:5432/pulse", "postgres://observer:xxxxx@db:5432/pulse"},
		{"postgres://observer@db/pulse", "postgres://observer@db/pulse"},
		{"host=db user=observer password=hunter2", "REDACTED"},
	}
	for _, tt := range tests {
		if got := redactDSN(tt.in); got != tt.want {
			t.Errorf("redactDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, want := range []string{"serve", "schema", "PULSE_OBSERVER_CONFIG"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}
