// Package errors defines the typed errors raised by the linkage engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGraphRead marks a failure to read the link graph. A resolution pass cannot continue past it.
	ErrGraphRead = errors.New("graph read failed")
	// ErrUnresolvedRecord is returned when a link references a record that cannot be found.
	ErrUnresolvedRecord = errors.New("record not found")
)

// ConfigError is raised at construction time for invalid field lists, thresholds or
// max-distance contract violations. It is never recovered from.
type ConfigError struct {
	Component string
	Setting   string
	Message   string
	cause     error
}

func NewConfigError(component, msg string) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   msg,
	}
}

// NewConfigErrorf creates a ConfigError with a formatted message. A %w verb keeps the wrapped error.
func NewConfigErrorf(component, format string, args ...any) *ConfigError {
	wrapped := fmt.Errorf(format, args...)
	return &ConfigError{
		Component: component,
		Message:   wrapped.Error(),
		cause:     errors.Unwrap(wrapped),
	}
}

func (e *ConfigError) Error() string {
	path := []string{}
	if e.Component != "" {
		path = append(path, fmt.Sprintf("component '%s'", e.Component))
	}
	if e.Setting != "" {
		path = append(path, fmt.Sprintf("setting '%s'", e.Setting))
	}

	if len(path) == 0 {
		return "configuration error: " + e.Message
	}

	return "configuration error: " + strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.cause
}

func (e *ConfigError) AddSetting(setting string) *ConfigError {
	e.Setting = setting
	return e
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// MeasureError reports a base measure failure for one field of one record pair.
type MeasureError struct {
	Measure   string
	RecordID1 string
	RecordID2 string
	Field1    string
	Field2    string
	Value1    string
	Value2    string
	cause     error
}

func NewMeasureError(measure string, cause error) *MeasureError {
	return &MeasureError{
		Measure: measure,
		cause:   cause,
	}
}

func (e *MeasureError) Error() string {
	fields := e.Field1
	if e.Field2 != "" && e.Field2 != e.Field1 {
		fields = e.Field1 + "/" + e.Field2
	}

	msg := fmt.Sprintf("measure '%s' failed comparing records '%s' and '%s' on field '%s' (values %q, %q)",
		e.Measure, e.RecordID1, e.RecordID2, fields, e.Value1, e.Value2)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *MeasureError) Unwrap() error {
	return e.cause
}

func (e *MeasureError) AddRecords(id1, id2 string) *MeasureError {
	e.RecordID1 = id1
	e.RecordID2 = id2
	return e
}

func (e *MeasureError) AddFields(field1, field2 string) *MeasureError {
	e.Field1 = field1
	e.Field2 = field2
	return e
}

func (e *MeasureError) AddValues(value1, value2 string) *MeasureError {
	e.Value1 = value1
	e.Value2 = value2
	return e
}

func IsMeasureError(err error) bool {
	var target *MeasureError
	return errors.As(err, &target)
}

// DataError reports malformed record data found outside a measure call.
type DataError struct {
	RecordID string
	Field    string
	Message  string
	cause    error
}

func NewDataError(recordID, msg string) *DataError {
	return &DataError{
		RecordID: recordID,
		Message:  msg,
	}
}

func WrapDataError(recordID string, err error) *DataError {
	if err == nil {
		return nil
	}

	var existing *DataError
	if errors.As(err, &existing) {
		return existing
	}

	return &DataError{
		RecordID: recordID,
		Message:  err.Error(),
		cause:    err,
	}
}

func (e *DataError) Error() string {
	path := []string{}
	if e.RecordID != "" {
		path = append(path, fmt.Sprintf("record '%s'", e.RecordID))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *DataError) Unwrap() error {
	return e.cause
}

func (e *DataError) AddField(field string) *DataError {
	e.Field = field
	return e
}

func IsDataError(err error) bool {
	var target *DataError
	return errors.As(err, &target)
}
