package ml

import (
	"errors"
	"fmt"
)

// DataError reports training input that cannot produce a model.
type DataError struct {
	Msg string
	Err error
}

// NewDataError formats a message and wraps err, which may be nil.
func NewDataError(err error, format string, args ...interface{}) *DataError {
	return &DataError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Msg, e.Err)
	}
	return "data error: " + e.Msg
}

func (e *DataError) Unwrap() error { return e.Err }

// LoadErrorKind classifies artifact load failures.
type LoadErrorKind int

const (
	LoadNotFound LoadErrorKind = iota + 1
	LoadCorrupt
)

func (k LoadErrorKind) String() string {
	switch k {
	case LoadNotFound:
		return "not_found"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadError reports an artifact that could not be loaded.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Kind)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PredictErrorKind classifies prediction failures.
type PredictErrorKind int

const (
	ModelUnavailable PredictErrorKind = iota + 1
	MissingField
	InvalidInput
	Unexpected
)

func (k PredictErrorKind) String() string {
	switch k {
	case ModelUnavailable:
		return "model_unavailable"
	case MissingField:
		return "missing_field"
	case InvalidInput:
		return "invalid_input"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// PredictError is returned for every failed prediction request. Error never
// exposes the wrapped cause for Unexpected; use Unwrap for logging.
type PredictError struct {
	Kind  PredictErrorKind
	Field string
	Err   error
}

func (e *PredictError) Error() string {
	switch e.Kind {
	case ModelUnavailable:
		return "prediction model is not available"
	case MissingField:
		return "missing field: " + e.Field
	case InvalidInput:
		msg := "invalid input"
		if e.Field != "" {
			msg += " for field " + e.Field
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	default:
		return "internal error while computing prediction"
	}
}

func (e *PredictError) Unwrap() error { return e.Err }

// PredictKind returns the kind of a PredictError in err's chain, or 0.
func PredictKind(err error) PredictErrorKind {
	var pe *PredictError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// LoadKind returns the kind of a LoadError in err's chain, or 0.
func LoadKind(err error) LoadErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
