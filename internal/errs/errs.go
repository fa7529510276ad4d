// Package errs defines the error kinds that abort a forecasting run.
//
// Every kind wraps an underlying cause and matches its sentinel through errors.Is,
// so callers can branch on the kind without knowing the concrete type:
//
//	if errors.Is(err, errs.ErrModelFit) { ... }
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDataIntegrity marks nulls, shape mismatches and unresolvable columns.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrConfiguration marks invalid settings such as an unknown feature column.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelFit marks numerical failures while fitting a model.
	ErrModelFit = errors.New("model fit error")
)

// DataIntegrityError reports input data that cannot be processed.
type DataIntegrityError struct {
	Op  string
	Err error
}

func (e *DataIntegrityError) Error() string { return format(ErrDataIntegrity, e.Op, e.Err) }
func (e *DataIntegrityError) Unwrap() error { return e.Err }
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string { return format(ErrConfiguration, e.Op, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ModelFitError reports a model that could not be fitted.
type ModelFitError struct {
	Op  string
	Err error
}

func (e *ModelFitError) Error() string { return format(ErrModelFit, e.Op, e.Err) }
func (e *ModelFitError) Unwrap() error { return e.Err }
func (e *ModelFitError) Is(target error) bool {
	return target == ErrModelFit
}

// DataIntegrity wraps err as a DataIntegrityError.
func DataIntegrity(op string, err error) error {
	return &DataIntegrityError{Op: op, Err: err}
}

// DataIntegrityf builds a DataIntegrityError from a format string.
func DataIntegrityf(op, format string, args ...interface{}) error {
	return &DataIntegrityError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Configuration wraps err as a ConfigurationError.
func Configuration(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

// Configurationf builds a ConfigurationError from a format string.
func Configurationf(op, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf(format, args...)}
}

// ModelFit wraps err as a ModelFitError.
func ModelFit(op string, err error) error {
	return &ModelFitError{Op: op, Err: err}
}

// ModelFitf builds a ModelFitError from a format string.
func ModelFitf(op, format string, args ...interface{}) error {
	return &ModelFitError{Op: op, Err: fmt.Errorf(format, args...)}
}

func format(kind error, op string, err error) string {
	switch {
	case op == "" && err == nil:
		return kind.Error()
	case op == "":
		return fmt.Sprintf("%s: %v", kind, err)
	case err == nil:
		return fmt.Sprintf("%s: %s", kind, op)
	}
	return fmt.Sprintf("%s: %s: %v", kind, op, err)
}
