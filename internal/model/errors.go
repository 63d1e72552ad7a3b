package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is. The typed errors below unwrap to them.
var (
	ErrOutOfOrder        = errors.New("candle out of order")
	ErrTimeframeMismatch = errors.New("timeframe mismatch")
	ErrDomainArithmetic  = errors.New("invalid decimal input")
	ErrCapacityExceeded  = errors.New("series capacity exceeded")
	ErrUnknownTimeframe  = errors.New("unknown timeframe")
	ErrIndexOutOfRange   = errors.New("index out of range")
)

// OutOfOrderError reports a candle that breaks timestamp monotonicity.
// It is a data-source or caller defect and is never retried.
type OutOfOrderError struct {
	Op   string // "add" or "prepend"
	Last time.Time
	Got  time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("%s: candle at %s is not after %s: %v",
		e.Op, e.Got.UTC().Format(time.RFC3339), e.Last.UTC().Format(time.RFC3339), ErrOutOfOrder)
}

func (e *OutOfOrderError) Unwrap() error { return ErrOutOfOrder }

// TimeframeMismatchError is raised when a session, replay or series disagree
// on the bar duration. It surfaces at construction time.
type TimeframeMismatchError struct {
	Want Timeframe
	Got  Timeframe
}

func (e *TimeframeMismatchError) Error() string {
	return fmt.Sprintf("%v: want %s, got %s", ErrTimeframeMismatch, e.Want, e.Got)
}

func (e *TimeframeMismatchError) Unwrap() error { return ErrTimeframeMismatch }

// DomainArithmeticError reports a non-finite or unparsable numeric input at
// the point where it would have become a decimal.
type DomainArithmeticError struct {
	Field string
	Value string
}

func (e *DomainArithmeticError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrDomainArithmetic, e.Value)
	}
	return fmt.Sprintf("%v: %s=%s", ErrDomainArithmetic, e.Field, e.Value)
}

func (e *DomainArithmeticError) Unwrap() error { return ErrDomainArithmetic }
