package etl

import (
	"errors"
	"fmt"
)

// ── Errors ─────────────────────────────────────────────────
// Every stage fails fast with a typed *Error. Category names the stage,
// Kind names the failure. Callers match with errors.Is against the
// sentinels below or read the kind with KindOf.

// Category identifies the pipeline stage that failed.
type Category string

const (
	CategoryExtraction Category = "ExtractionError"
	CategoryRateTable  Category = "RateTableError"
	CategoryTransform  Category = "TransformError"
	CategorySink       Category = "SinkError"
	CategoryQuery      Category = "QueryError"
)

// Kind identifies the specific failure.
type Kind string

const (
	KindNoTableFound     Kind = "NoTableFound"
	KindEmptyTable       Kind = "EmptyTable"
	KindMalformedMetric  Kind = "MalformedMetric"
	KindMissingCell      Kind = "MissingCell"
	KindMalformedRow     Kind = "MalformedRow"
	KindUnknownCurrency  Kind = "UnknownCurrency"
	KindWriteFailure     Kind = "WriteFailure"
	KindExecutionFailure Kind = "ExecutionFailure"
)

// Sentinels for errors.Is.
var (
	ErrNoTableFound     = &Error{Category: CategoryExtraction, Kind: KindNoTableFound}
	ErrEmptyTable       = &Error{Category: CategoryExtraction, Kind: KindEmptyTable}
	ErrMalformedMetric  = &Error{Category: CategoryExtraction, Kind: KindMalformedMetric}
	ErrMissingCell      = &Error{Category: CategoryExtraction, Kind: KindMissingCell}
	ErrMalformedRow     = &Error{Category: CategoryRateTable, Kind: KindMalformedRow}
	ErrUnknownCurrency  = &Error{Category: CategoryTransform, Kind: KindUnknownCurrency}
	ErrWriteFailure     = &Error{Category: CategorySink, Kind: KindWriteFailure}
	ErrExecutionFailure = &Error{Category: CategoryQuery, Kind: KindExecutionFailure}
)

// Error is a typed pipeline failure.
type Error struct {
	Category Category
	Kind     Kind
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s(%s)", e.Category, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on category and kind so sentinels compare equal to any
// error of the same kind regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Kind == t.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(cat Category, kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Category: cat, Kind: kind, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// SinkError wraps a storage failure for the named sink.
func SinkError(sink string, err error) error {
	return newError(CategorySink, KindWriteFailure, err, "%s", sink)
}

// QueryError wraps a failed fixed query.
func QueryError(query string, err error) error {
	return newError(CategoryQuery, KindExecutionFailure, err, "%s", query)
}
