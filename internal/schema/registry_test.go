package schema

import (
	"errors"
	"slices"
	"testing"
)

func TestDefault_SafeColumnsSubsetOfAllColumns(t *testing.T) {
	for _, d := range Default().Tables() {
		for _, c := range d.SafeColumns {
			if !slices.Contains(d.AllColumns, c) {
				t.Errorf("table %s: safe column %q not in all columns", d.Name, c)
			}
		}
	}
}

func TestDefault_RegistersEveryKnownTable(t *testing.T) {
	r := Default()
	for _, tbl := range knownTables {
		if _, err := r.Descriptor(string(tbl)); err != nil {
			t.Errorf("Descriptor(%s) error: %v", tbl, err)
		}
	}
	if got := len(r.AllowedTables()); got != len(knownTables) {
		t.Errorf("AllowedTables len = %d, want %d", got, len(knownTables))
	}
}

func TestDefault_ExcludesLargePayloadColumns(t *testing.T) {
	r := Default()
	tests := []struct {
		table  Table
		column string
	}{
		{Signals, "payload"},
		{Intents, "reasoning"},
		{Drafts, "content"},
		{Drafts, "metadata"},
		{Outcomes, "user_feedback"},
		{Predictions, "context"},
		{Goals, "description"},
		{ImprovementProposals, "payload"},
		{Constraints, "rule"},
		{AutonomyLevels, "allowed_actions"},
	}
	for _, tt := range tests {
		d, err := r.Descriptor(string(tt.table))
		if err != nil {
			t.Fatalf("Descriptor(%s): %v", tt.table, err)
		}
		if d.HasSafeColumn(tt.column) {
			t.Errorf("%s.%s should not be a safe column", tt.table, tt.column)
		}
		if !slices.Contains(d.AllColumns, tt.column) {
			t.Errorf("%s.%s should exist in all columns", tt.table, tt.column)
		}
	}
}

func TestDescriptor_UnknownTable(t *testing.T) {
	r := Default()
	for _, name := range []string{"", "users", "PULSE_SIGNALS", "pulse_signals ", "auth.users"} {
		_, err := r.Descriptor(name)
		if !errors.Is(err, ErrUnknownTable) {
			t.Errorf("Descriptor(%q) err = %v, want ErrUnknownTable", name, err)
		}
		if _, err := r.SafeColumns(name); !errors.Is(err, ErrUnknownTable) {
			t.Errorf("SafeColumns(%q) err = %v, want ErrUnknownTable", name, err)
		}
	}
}

func TestIsGlobal(t *testing.T) {
	r := Default()
	tests := []struct {
		name string
		want bool
	}{
		{"pulse_autonomy_levels", true},
		{"pulse_constraints", true},
		{"pulse_goals", false},
		{"pulse_signals", false},
		{"not_a_table", false},
		{"Pulse_Constraints", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := r.IsGlobal(tt.name); got != tt.want {
			t.Errorf("IsGlobal(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGlobalTables(t *testing.T) {
	got := Default().GlobalTables()
	want := []string{"pulse_autonomy_levels", "pulse_constraints"}
	if !slices.Equal(got, want) {
		t.Errorf("GlobalTables = %v, want %v", got, want)
	}
}

func TestDescriptor_ReturnsCopy(t *testing.T) {
	r := Default()
	d, _ := r.Descriptor("pulse_goals")
	d.SafeColumns[0] = "description"

	again, _ := r.Descriptor("pulse_goals")
	if again.SafeColumns[0] == "description" {
		t.Error("mutating a returned descriptor changed registry state")
	}
}

func TestNewRegistry_RejectsInvalidDescriptors(t *testing.T) {
	tests := []struct {
		name string
		desc []TableDescriptor
	}{
		{"safe not subset", []TableDescriptor{{Name: Goals, AllColumns: []string{"id"}, SafeColumns: []string{"id", "title"}}}},
		{"no safe columns", []TableDescriptor{{Name: Goals, AllColumns: []string{"id"}}}},
		{"empty name", []TableDescriptor{{AllColumns: []string{"id"}, SafeColumns: []string{"id"}}}},
		{"duplicate column", []TableDescriptor{{Name: Goals, AllColumns: []string{"id", "id"}, SafeColumns: []string{"id"}}}},
		{"duplicate table", []TableDescriptor{
			{Name: Goals, AllColumns: []string{"id"}, SafeColumns: []string{"id"}},
			{Name: Goals, AllColumns: []string{"id"}, SafeColumns: []string{"id"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.desc...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewRegistry_UnregisteredKnownTable(t *testing.T) {
	r, err := NewRegistry(TableDescriptor{Name: Goals, AllColumns: []string{"id"}, SafeColumns: []string{"id"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := r.Descriptor("pulse_signals"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("err = %v, want ErrUnknownTable for a known but unregistered table", err)
	}
	if r.IsGlobal("pulse_autonomy_levels") {
		t.Error("unregistered table must not be global")
	}
}

func TestParseTable(t *testing.T) {
	if tbl, ok := ParseTable("pulse_goals"); !ok || tbl != Goals {
		t.Errorf("ParseTable(pulse_goals) = %q, %v", tbl, ok)
	}
	if _, ok := ParseTable("pulse_Goals"); ok {
		t.Error("ParseTable should be case-sensitive")
	}
}
