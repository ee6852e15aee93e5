package descriptor

import (
	"fmt"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/davidmdm/x/xerr"
)

type ErrorType string

const (
	// ErrorTypeSchema marks a missing, unknown or mistyped field, a value with invalid syntax,
	// or a selector label the pod template does not carry.
	ErrorTypeSchema ErrorType = "SchemaError"
	// ErrorTypeReference marks a dangling volume reference: a volume mount naming a volume the pod
	// does not declare. There is exactly one per dangling mount.
	ErrorTypeReference ErrorType = "ReferenceError"
	// ErrorTypeRange marks a numeric value outside of its domain.
	ErrorTypeRange ErrorType = "RangeError"
)

// Sentinels for use with errors.Is. They match any error of the same type.
var (
	ErrSchema    = &Error{Type: ErrorTypeSchema}
	ErrReference = &Error{Type: ErrorTypeReference}
	ErrRange     = &Error{Type: ErrorTypeRange}
)

type Error struct {
	Type   ErrorType
	Field  string
	Value  any
	Detail string
	// Line is the 1-based line of the offending node in the source document, or 0 when unknown.
	Line int
}

func (err *Error) Error() string {
	var builder strings.Builder
	builder.WriteString(string(err.Type))
	builder.WriteString(": ")
	if err.Field != "" {
		builder.WriteString(err.Field)
		builder.WriteString(": ")
	}
	builder.WriteString(err.Detail)
	if err.Value != nil {
		fmt.Fprintf(&builder, ": %v", err.Value)
	}
	if err.Line > 0 {
		fmt.Fprintf(&builder, " (line %d)", err.Line)
	}
	return builder.String()
}

func (err *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Type == err.Type && (other.Field == "" || other.Field == err.Field)
}

func newError(typ ErrorType, path *field.Path, value any, format string, args ...any) *Error {
	err := &Error{Type: typ, Value: value, Detail: fmt.Sprintf(format, args...)}
	if path != nil {
		err.Field = path.String()
	}
	return err
}

func schemaError(path *field.Path, value any, format string, args ...any) *Error {
	return newError(ErrorTypeSchema, path, value, format, args...)
}

func referenceError(path *field.Path, value any, format string, args ...any) *Error {
	return newError(ErrorTypeReference, path, value, format, args...)
}

func rangeError(path *field.Path, value any, format string, args ...any) *Error {
	return newError(ErrorTypeRange, path, value, format, args...)
}

// ErrorList is the complete set of problems found in a document.
type ErrorList []*Error

func (list ErrorList) Error() string {
	switch len(list) {
	case 0:
		return "no errors"
	case 1:
		return list[0].Error()
	default:
		return xerr.MultiErrOrderedFrom(fmt.Sprintf("%d errors", len(list)), list.Unwrap()...).Error()
	}
}

func (list ErrorList) Unwrap() []error {
	errs := make([]error, len(list))
	for i, err := range list {
		errs[i] = err
	}
	return errs
}

// Err returns nil for an empty list so that callers never observe a typed nil error.
func (list ErrorList) Err() error {
	if len(list) == 0 {
		return nil
	}
	return list
}

func (list ErrorList) Filter(typ ErrorType) ErrorList {
	var result ErrorList
	for _, err := range list {
		if err.Type == typ {
			result = append(result, err)
		}
	}
	return result
}

// Sort orders errors by source line then field, keeping errors without a line last.
func (list ErrorList) Sort() {
	slices.SortStableFunc(list, func(a, b *Error) int {
		switch {
		case a.Line == b.Line:
			return strings.Compare(a.Field, b.Field)
		case a.Line == 0:
			return 1
		case b.Line == 0:
			return -1
		default:
			return a.Line - b.Line
		}
	})
}

// shadowedBy reports whether err concerns the same field as, or a field beneath, one of the fields in list.
// An error without a field concerns the whole document.
func (err *Error) shadowedBy(list ErrorList) bool {
	for _, other := range list {
		if other.Field == "" {
			return true
		}
		if err.Field == other.Field || strings.HasPrefix(err.Field, other.Field+".") || strings.HasPrefix(err.Field, other.Field+"[") {
			return true
		}
	}
	return false
}
