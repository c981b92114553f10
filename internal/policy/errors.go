package policy

import (
	"errors"
	"fmt"

	"github.com/pulse-os/pulse-observer/internal/schema"
)

// Code classifies why a request was denied.
type Code string

const (
	CodeUnknownTable     Code = "unknown_table"
	CodeColumnPolicy     Code = "column_policy"
	CodeMissingUserScope Code = "missing_user_scope"
)

// Denial sentinels. ErrUnknownTable is shared with the schema package so
// either can be matched with errors.Is.
var (
	ErrUnknownTable     = schema.ErrUnknownTable
	ErrColumnPolicy     = errors.New("column policy violation")
	ErrMissingUserScope = errors.New("missing user scope")
)

// DeniedError carries a non-permitting Decision through error returns.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Decision.Reason)
}

// Is matches the sentinel for the decision's code.
func (e *DeniedError) Is(target error) bool {
	switch e.Decision.Code {
	case CodeUnknownTable:
		return target == ErrUnknownTable
	case CodeColumnPolicy:
		return target == ErrColumnPolicy
	case CodeMissingUserScope:
		return target == ErrMissingUserScope
	}
	return false
}

// Err returns nil for a permitted decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Permitted {
		return nil
	}
	return &DeniedError{Decision: d}
}
