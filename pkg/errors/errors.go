// Package errors provides error handling and the warning system for grove.
// It exposes structured error types for the common failure modes of
// ensemble training and evaluation, built on cockroachdb/errors so every
// error carries a stack trace.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("grove-warning: %v\n", w)
	}
)

// SetWarningHandler sets the warning handler used across the library.
// It controls how non-fatal conditions such as ConvergenceWarning are
// reported.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // ignore warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// Warn reports a warning through the configured handler.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is raised when an iterative optimizer stops before
// meeting its tolerance.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or adjusting parameters.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// EstimatorDroppedWarning is raised by lenient ensemble training when a
// base estimator fails to fit and is excluded from the ensemble.
type EstimatorDroppedWarning struct {
	Ensemble string
	Index    int
	Cause    error
}

func (w *EstimatorDroppedWarning) Error() string {
	return fmt.Sprintf("%s dropped estimator %d after training failure: %v", w.Ensemble, w.Index, w.Cause)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *EstimatorDroppedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ensemble", w.Ensemble).
		Int("estimator_index", w.Index).
		AnErr("cause", w.Cause).
		Str("type", "EstimatorDroppedWarning")
}

// NewEstimatorDroppedWarning creates a new EstimatorDroppedWarning.
func NewEstimatorDroppedWarning(ensemble string, index int, cause error) *EstimatorDroppedWarning {
	return &EstimatorDroppedWarning{Ensemble: ensemble, Index: index, Cause: cause}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when Predict, Transform or Score is called on
// a model that has not been fitted.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("grove: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// ConfigurationError is returned when an estimator is constructed or
// trained with invalid hyperparameters, for example a non-positive number
// of estimators or an empty dataset.
type ConfigurationError struct {
	Estimator string
	Param     string
	Reason    string
	Value     interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("grove: %s: invalid configuration for '%s': %s (got: %v)", e.Estimator, e.Param, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("estimator", e.Estimator).
		Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stack trace
// attached.
func NewConfigurationError(estimator, param, reason string, value interface{}) error {
	err := &ConfigurationError{Estimator: estimator, Param: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// InsufficientDataError is returned when an evaluation cannot be carried
// out because no sample satisfies its precondition. Out-of-bag scoring
// returns it when every row was seen by every estimator, so no row has an
// out-of-bag committee.
type InsufficientDataError struct {
	Op      string
	Reason  string
	Skipped int
	Total   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("grove: %s: %s (%d of %d rows unusable)", e.Op, e.Reason, e.Skipped, e.Total)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Int("skipped", e.Skipped).
		Int("total", e.Total).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError creates an InsufficientDataError with a stack
// trace attached.
func NewInsufficientDataError(op, reason string, skipped, total int) error {
	err := &InsufficientDataError{Op: op, Reason: reason, Skipped: skipped, Total: total}
	return errors.WithStack(err)
}

// DimensionError is returned when input dimensions do not match what the
// model expects.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("grove: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError is returned when an argument has an invalid or unexpected
// value.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("grove: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// EstimatorError wraps a training or prediction failure of a single base
// estimator inside an ensemble, recording which member failed.
type EstimatorError struct {
	Ensemble string
	Index    int
	Err      error
}

func (e *EstimatorError) Error() string {
	return fmt.Sprintf("grove: %s: estimator %d: %v", e.Ensemble, e.Index, e.Err)
}

func (e *EstimatorError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *EstimatorError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("ensemble", e.Ensemble).
		Int("estimator_index", e.Index).
		AnErr("cause", e.Err).
		Str("type", "EstimatorError")
}

// NewEstimatorError creates an EstimatorError with a stack trace attached.
func NewEstimatorError(ensemble string, index int, err error) error {
	estErr := &EstimatorError{Ensemble: ensemble, Index: index, Err: err}
	return errors.WithStack(estErr)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches the target error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As reports whether err can be assigned to the target type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to an error.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error variables
//
// ===========================================================================

// ErrEmptyData is returned when an empty dataset is passed in.
var ErrEmptyData = New("empty data")
