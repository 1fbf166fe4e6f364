// Package state defines the operation state model: an immutable value type
// describing the lifecycle of an asynchronous data source (idle, loading,
// success, error) together with an optional cached payload.
//
// A State is never mutated in place. Every transition constructs a new value,
// and derivation methods (WithData, WithoutData, WithTrace) return copies.
// Consumers therefore always observe a consistent snapshot.
//
//	st := state.Success("hello")
//	st.IsSuccess() // true
//	st.MustData()  // "hello"
//
// The variant is a plain tag (Kind), not a type hierarchy: Idle and Loading
// are independent tags that happen to share the optional-payload trait, so
// IsIdle and IsLoading are mutually exclusive by construction.
package state

import (
	"fmt"
	"reflect"
)

// Kind discriminates the four state variants.
type Kind uint8

const (
	// KindIdle means the operation is ready but not running. Reached only by
	// explicit configuration or an explicit reset.
	KindIdle Kind = iota
	// KindLoading means a fetch or subscription is in flight. The payload, if
	// present, is the stale value carried over from a prior success.
	KindLoading
	// KindSuccess means the operation completed with a value, or with the
	// explicit no-value sentinel (see Empty).
	KindSuccess
	// KindError means the operation failed. The payload, if present, is the
	// last good value retained for graceful degradation.
	KindError
)

// String returns the lowercase tag name.
func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// State is the operation state of an asynchronous data source. The zero
// value is an idle state without a payload.
//
// State contains no reference fields of its own, so it is usable directly as
// a map key whenever T is comparable.
type State[T any] struct {
	kind    Kind
	data    T
	hasData bool
	empty   bool
	message string
	cause   error
	trace   string
}

// Idle returns an idle state with no payload.
func Idle[T any]() State[T] {
	return State[T]{kind: KindIdle}
}

// Loading returns a loading state with no payload.
func Loading[T any]() State[T] {
	return State[T]{kind: KindLoading}
}

// Success returns a success state carrying data.
func Success[T any](data T) State[T] {
	return State[T]{kind: KindSuccess, data: data, hasData: true}
}

// Empty returns the success variant with the explicit no-value sentinel:
// the operation completed, but there is deliberately nothing to show.
func Empty[T any]() State[T] {
	return State[T]{kind: KindSuccess, empty: true}
}

// Failure returns an error state with no payload. Attach a retained payload
// with WithData and a stack trace with WithTrace.
func Failure[T any](message string, cause error) State[T] {
	return State[T]{kind: KindError, message: message, cause: cause}
}

// WithData returns a copy of s carrying data as its payload. Applied to an
// empty success it clears the no-value sentinel.
func (s State[T]) WithData(data T) State[T] {
	s.data = data
	s.hasData = true
	s.empty = false
	return s
}

// WithoutData returns a copy of s with the payload removed.
func (s State[T]) WithoutData() State[T] {
	var zero T
	s.data = zero
	s.hasData = false
	return s
}

// WithTrace returns a copy of s carrying a textual stack trace.
func (s State[T]) WithTrace(trace string) State[T] {
	s.trace = trace
	return s
}

// Kind returns the variant tag.
func (s State[T]) Kind() Kind { return s.kind }

// IsIdle reports whether s is the idle variant.
func (s State[T]) IsIdle() bool { return s.kind == KindIdle }

// IsLoading reports whether s is the loading variant. An idle state is never
// loading, even though both carry the same optional payload.
func (s State[T]) IsLoading() bool { return s.kind == KindLoading }

// IsSuccess reports whether s is the success variant, including the empty
// sentinel.
func (s State[T]) IsSuccess() bool { return s.kind == KindSuccess }

// IsEmpty reports whether s is a success carrying the explicit no-value
// sentinel.
func (s State[T]) IsEmpty() bool { return s.kind == KindSuccess && s.empty }

// IsError reports whether s is the error variant.
func (s State[T]) IsError() bool { return s.kind == KindError }

// HasData reports whether a payload is present. An empty success reports
// false.
func (s State[T]) HasData() bool { return s.hasData }

// HasNoData is the negation of HasData.
func (s State[T]) HasNoData() bool { return !s.hasData }

// Data returns the payload and whether one is present.
func (s State[T]) Data() (T, bool) {
	return s.data, s.hasData
}

// DataOr returns the payload, or fallback when absent.
func (s State[T]) DataOr(fallback T) T {
	if s.hasData {
		return s.data
	}
	return fallback
}

// MustData returns the payload and panics when it is absent, including for
// the empty-success sentinel. Callers that have not checked HasData get a
// loud failure instead of a silently wrong value.
func (s State[T]) MustData() T {
	if !s.hasData {
		panic(fmt.Sprintf("opstate: no data in %s state", s.kind))
	}
	return s.data
}

// Message returns the formatted error message, if any.
func (s State[T]) Message() string { return s.message }

// Cause returns the original failure, if any.
func (s State[T]) Cause() error { return s.cause }

// Trace returns the textual stack trace, if any.
func (s State[T]) Trace() string { return s.trace }

// String renders a short human-readable description, mainly for logs and
// test failures.
func (s State[T]) String() string {
	switch {
	case s.IsEmpty():
		return "success(empty)"
	case s.kind == KindError && s.hasData:
		return fmt.Sprintf("error(%q, data=%v)", s.message, s.data)
	case s.kind == KindError:
		return fmt.Sprintf("error(%q)", s.message)
	case s.hasData:
		return fmt.Sprintf("%s(data=%v)", s.kind, s.data)
	default:
		return s.kind.String()
	}
}

// Equal reports value equality: same variant tag and all fields structurally
// equal. The payload is compared with its own Equal method when it has one,
// falling back to reflect.DeepEqual; the cause is compared by error identity.
func (s State[T]) Equal(other State[T]) bool {
	if s.kind != other.kind ||
		s.hasData != other.hasData ||
		s.empty != other.empty ||
		s.message != other.message ||
		s.trace != other.trace ||
		s.cause != other.cause {
		return false
	}
	if !s.hasData {
		return true
	}
	return dataEqual(s.data, other.data)
}

func dataEqual[T any](a, b T) bool {
	if eq, ok := any(a).(interface{ Equal(T) bool }); ok {
		return eq.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}
