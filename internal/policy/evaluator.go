// Package policy decides whether a read request against the Omega tables
// is permitted. Evaluation is a pure function of the request and the
// schema registry; denial is a normal return value, never an error.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pulse-os/pulse-observer/internal/schema"
)

// DefaultMaxQueryLimit is the row ceiling used when none is configured.
const DefaultMaxQueryLimit = 100

// AccessRequest is a single query intent.
type AccessRequest struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns,omitempty"`
	UserID  string   `json:"user_id,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Decision is the evaluator's verdict on an AccessRequest.
type Decision struct {
	Permitted bool   `json:"permitted"`
	Table     string `json:"table"`
	// Columns is the validated projection; all safe columns when the
	// request named none.
	Columns        []string `json:"columns,omitempty"`
	InvalidColumns []string `json:"invalid_columns,omitempty"`
	EffectiveLimit int      `json:"effective_limit"`
	// Scoped is true when the read must be filtered by UserID.
	Scoped bool   `json:"scoped"`
	UserID string `json:"-"`
	Code   Code   `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Evaluator applies the access policy. It holds no mutable state and is
// safe for concurrent use.
type Evaluator struct {
	registry      *schema.Registry
	maxQueryLimit int
}

// NewEvaluator creates an Evaluator. A maxQueryLimit of zero selects
// DefaultMaxQueryLimit; negative values are rejected.
func NewEvaluator(registry *schema.Registry, maxQueryLimit int) (*Evaluator, error) {
	if registry == nil {
		return nil, fmt.Errorf("policy: nil registry")
	}
	if maxQueryLimit < 0 {
		return nil, fmt.Errorf("policy: max query limit must be positive, got %d", maxQueryLimit)
	}
	if maxQueryLimit == 0 {
		maxQueryLimit = DefaultMaxQueryLimit
	}
	return &Evaluator{registry: registry, maxQueryLimit: maxQueryLimit}, nil
}

// MaxQueryLimit returns the configured row ceiling.
func (e *Evaluator) MaxQueryLimit() int { return e.maxQueryLimit }

// Registry returns the registry the evaluator consults.
func (e *Evaluator) Registry() *schema.Registry { return e.registry }

// Evaluate decides req. The order of checks is table, columns, scope;
// the first failing check determines Code and Reason.
func (e *Evaluator) Evaluate(req AccessRequest) Decision {
	dec := Decision{
		Table:          req.Table,
		UserID:         req.UserID,
		EffectiveLimit: e.clamp(req.Limit),
	}

	desc, err := e.registry.Descriptor(req.Table)
	if err != nil {
		dec.Code = CodeUnknownTable
		dec.Reason = fmt.Sprintf("table %q is not allowlisted; allowed tables: %s",
			req.Table, strings.Join(e.registry.AllowedTables(), ", "))
		return dec
	}

	if len(req.Columns) == 0 {
		dec.Columns = desc.SafeColumns
	} else {
		dec.InvalidColumns = invalidColumns(req.Columns, desc)
		if len(dec.InvalidColumns) > 0 {
			dec.Code = CodeColumnPolicy
			dec.Reason = fmt.Sprintf("columns not in safe set for %s: %s (safe columns: %s)",
				desc.Name, strings.Join(dec.InvalidColumns, ", "), strings.Join(desc.SafeColumns, ", "))
			return dec
		}
		dec.Columns = dedupe(req.Columns)
	}

	if !desc.Global {
		if strings.TrimSpace(req.UserID) == "" {
			dec.Code = CodeMissingUserScope
			dec.Reason = fmt.Sprintf("missing required user scope: %s is partitioned by user and needs a caller user id", desc.Name)
			return dec
		}
		dec.Scoped = true
	} else if req.UserID != "" && desc.HasSafeColumn("user_id") {
		// Global tables accept an optional scope when they carry user_id.
		dec.Scoped = true
	}

	dec.Permitted = true
	return dec
}

// clamp returns min(limit, max). Non-positive limits mean "the ceiling".
func (e *Evaluator) clamp(limit int) int {
	if limit <= 0 || limit > e.maxQueryLimit {
		return e.maxQueryLimit
	}
	return limit
}

// invalidColumns returns requested columns missing from the safe set,
// preserving request order.
func invalidColumns(requested []string, desc schema.TableDescriptor) []string {
	var bad []string
	for _, c := range requested {
		if !desc.HasSafeColumn(c) && !slices.Contains(bad, c) {
			bad = append(bad, c)
		}
	}
	return bad
}

func dedupe(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
