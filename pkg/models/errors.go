package models

import (
	"errors"
	"fmt"
)

// ParseError reports a unit that could not be structurally analyzed.
// Batch scans record it and continue; it is never a batch abort.
type ParseError struct {
	File string
	Unit string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("parse %s (%s): %v", e.File, e.Unit, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid construction-time setting, such as
// mismatched fingerprint widths or an out-of-range radius. It fails fast.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// IndexCorruptionError reports a violated edge-distance invariant in the
// similarity index. It should never occur under single-writer discipline;
// when it does, the operation fails loudly instead of returning silently
// incorrect results.
type IndexCorruptionError struct {
	Detail string
}

func (e *IndexCorruptionError) Error() string {
	return "similarity index corrupted: " + e.Detail
}

// Collaborator failure sentinels. Persistence failures surface to the
// caller; judge failures degrade silently to the structural-only result.
var (
	ErrStoreUnavailable = errors.New("persisted store unavailable")
	ErrJudgeUnavailable = errors.New("semantic judge unavailable")
)
