package pipeline

import (
	"errors"

	"github.com/docenthq/docent/internal/store"
)

// ErrNoSource is returned when a pipeline runs without a registered source.
var ErrNoSource = errors.New("pipeline: no source registered")

// ErrMissingDependency marks a step that cannot run because a result it
// needs is not recorded on the submission yet.
var ErrMissingDependency = errors.New("pipeline: missing step dependency")

// ErrBadConfig marks a step or source wired with unusable options.
var ErrBadConfig = errors.New("pipeline: invalid configuration")

// Failure kinds recorded in logs and run reports.
const (
	FailDependency = "dependency-missing"
	FailDecode     = "decode-error"
	FailConfig     = "config-error"
	FailExternal   = "external-failure"
)

// FailureKind classifies a step error for reporting. Anything the pipeline
// does not recognize counts as an external failure.
func FailureKind(err error) string {
	var decodeErr *store.DecodeError
	switch {
	case errors.Is(err, ErrMissingDependency):
		return FailDependency
	case errors.As(err, &decodeErr):
		return FailDecode
	case errors.Is(err, ErrBadConfig):
		return FailConfig
	default:
		return FailExternal
	}
}
