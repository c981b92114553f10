package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/brain"
	"github.com/pulse-os/pulse-observer/internal/gateway"
)

type fakeSchema struct {
	levelsErr error
}

func (fakeSchema) DescribeSchema() gateway.SchemaInfo {
	return gateway.SchemaInfo{
		MaxQueryLimit: 100,
		Tables: []gateway.TableSummary{
			{Name: "pulse_signals", SafeColumns: []string{"id", "kind"}},
		},
	}
}

func (f fakeSchema) AutonomyLevels(ctx context.Context) ([]gateway.AutonomyLevel, error) {
	if f.levelsErr != nil {
		return nil, f.levelsErr
	}
	return []gateway.AutonomyLevel{{Level: "L0", Name: "Observe", RequiresApproval: true}}, nil
}

type fakeBrain struct {
	modules map[string]string
	failAll bool
}

func (f fakeBrain) Load(ctx context.Context, name string) (*brain.Module, error) {
	if f.failAll {
		return nil, errors.New("github unreachable")
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", brain.ErrInvalidModuleName, name)
	}
	content, ok := f.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", brain.ErrModuleNotFound, name)
	}
	return &brain.Module{Name: name, Content: content}, nil
}

func (f fakeBrain) List(ctx context.Context) ([]string, error) {
	if f.failAll {
		return nil, errors.New("github unreachable")
	}
	return []string{"calibration", "focus"}, nil
}

func readReq(uri string) mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return req
}

func text(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T", contents[0])
	}
	return tc
}

func TestHandleSchema(t *testing.T) {
	h := NewHandler(fakeSchema{}, nil)
	out, err := h.HandleSchema(context.Background(), readReq(SchemaURI))
	if err != nil {
		t.Fatalf("HandleSchema: %v", err)
	}
	tc := text(t, out)
	if tc.MIMEType != "application/json" || tc.URI != SchemaURI {
		t.Errorf("contents = %+v", tc)
	}
	var info gateway.SchemaInfo
	if err := json.Unmarshal([]byte(tc.Text), &info); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if info.MaxQueryLimit != 100 || len(info.Tables) != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestHandleAutonomyLevels(t *testing.T) {
	h := NewHandler(fakeSchema{}, nil)
	out, err := h.HandleAutonomyLevels(context.Background(), readReq(AutonomyLevelsURI))
	if err != nil {
		t.Fatalf("HandleAutonomyLevels: %v", err)
	}
	if !strings.Contains(text(t, out).Text, `"Observe"`) {
		t.Errorf("text = %s", text(t, out).Text)
	}

	cause := &gateway.StorageError{Op: "autonomy_levels", Err: errors.New("dial tcp 10.0.0.7:5432: refused")}
	h = NewHandler(fakeSchema{levelsErr: cause}, nil)
	out, err = h.HandleAutonomyLevels(context.Background(), readReq(AutonomyLevelsURI))
	if err != nil {
		t.Fatalf("HandleAutonomyLevels: %v", err)
	}
	tc := text(t, out)
	if tc.MIMEType != "text/plain" || !strings.HasPrefix(tc.Text, "Error:") {
		t.Errorf("contents = %+v", tc)
	}
	if strings.Contains(tc.Text, "10.0.0.7") {
		t.Errorf("storage cause leaked: %s", tc.Text)
	}
}

func TestHasBrain(t *testing.T) {
	if NewHandler(fakeSchema{}, nil).HasBrain() {
		t.Error("HasBrain with nil source")
	}
	if !NewHandler(fakeSchema{}, fakeBrain{}).HasBrain() {
		t.Error("HasBrain with source")
	}
}

func TestHandleBrainModule(t *testing.T) {
	h := NewHandler(fakeSchema{}, fakeBrain{modules: map[string]string{"focus": "# Focus\n"}})

	tests := []struct {
		name     string
		uri      string
		wantMIME string
		wantText string
	}{
		{"found", "pulse://brain/focus", "text/markdown", "# Focus\n"},
		{"missing", "pulse://brain/sleep", "text/plain", "Error:"},
		{"invalid name", "pulse://brain/a/b", "text/plain", "Error:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.HandleBrainModule(context.Background(), readReq(tt.uri))
			if err != nil {
				t.Fatalf("HandleBrainModule: %v", err)
			}
			tc := text(t, out)
			if tc.MIMEType != tt.wantMIME || !strings.HasPrefix(tc.Text, tt.wantText) {
				t.Errorf("contents = %+v", tc)
			}
		})
	}
}

func TestHandleBrainModule_Errors(t *testing.T) {
	h := NewHandler(fakeSchema{}, fakeBrain{failAll: true})
	if _, err := h.HandleBrainModule(context.Background(), readReq("pulse://brain/focus")); err == nil {
		t.Error("expected transport failure to surface as an error")
	}
	if _, err := h.HandleBrainModule(context.Background(), readReq("pulse://observer/schema")); err == nil {
		t.Error("expected error for a foreign URI")
	}
}

func TestHandleBrainIndex(t *testing.T) {
	h := NewHandler(fakeSchema{}, fakeBrain{})
	out, err := h.HandleBrainIndex(context.Background(), readReq(BrainIndexURI))
	if err != nil {
		t.Fatalf("HandleBrainIndex: %v", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(text(t, out).Text), &names); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(names) != 2 || names[0] != "calibration" {
		t.Errorf("names = %v", names)
	}

	h = NewHandler(fakeSchema{}, fakeBrain{failAll: true})
	out, err = h.HandleBrainIndex(context.Background(), readReq(BrainIndexURI))
	if err != nil {
		t.Fatalf("HandleBrainIndex: %v", err)
	}
	if !strings.HasPrefix(text(t, out).Text, "Error:") {
		t.Errorf("text = %s", text(t, out).Text)
	}
}

func TestDefinitions(t *testing.T) {
	h := NewHandler(fakeSchema{}, fakeBrain{})
	if r := h.SchemaResource(); r.URI != SchemaURI || r.MIMEType != "application/json" {
		t.Errorf("schema resource = %+v", r)
	}
	if r := h.AutonomyLevelsResource(); r.URI != AutonomyLevelsURI {
		t.Errorf("levels resource = %+v", r)
	}
	if r := h.BrainIndexResource(); r.URI != BrainIndexURI {
		t.Errorf("brain index resource = %+v", r)
	}
	if tmpl := h.BrainTemplateResource(); tmpl.Name != "Brain Module" || tmpl.MIMEType != "text/markdown" {
		t.Errorf("template = %+v", tmpl)
	}
}
