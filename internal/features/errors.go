// Package features turns the raw operational tables into the numeric,
// fully encoded matrix the escalation classifier trains on.
package features

import "errors"

var (
	// ErrEmptyInput indicates there are no usable rows to build from.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnknownCategory indicates a value outside the category universe.
	ErrUnknownCategory = errors.New("unknown category")
)
