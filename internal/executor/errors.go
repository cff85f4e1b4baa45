package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlexec/internal/language"
)

// ErrorCode classifies request-level failures. It is exposed to clients in
// the "code" error extension.
type ErrorCode string

const (
	CodeParse               ErrorCode = "PARSE_ERROR"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeOperationResolution ErrorCode = "OPERATION_RESOLUTION_ERROR"
	CodeVariableCoercion    ErrorCode = "VARIABLE_COERCION_ERROR"
	CodeCancelled           ErrorCode = "CANCELLED"
)

// RequestError aborts a request before any resolver runs. No data is
// produced for it.
type RequestError struct {
	Code   ErrorCode
	Errors []*GraphQLError
}

func (e *RequestError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Message
	}
	return string(e.Code) + ": " + strings.Join(msgs, "; ")
}

// NewRequestError builds a RequestError whose errors all carry code.
func NewRequestError(code ErrorCode, errs ...*GraphQLError) *RequestError {
	for _, e := range errs {
		if e.Extensions == nil {
			e.Extensions = map[string]any{}
		}
		e.Extensions["code"] = string(code)
	}
	return &RequestError{Code: code, Errors: errs}
}

// FromGQLErrors converts parser and validator errors.
func FromGQLErrors(list language.ErrorList) []*GraphQLError {
	out := make([]*GraphQLError, 0, len(list))
	for _, e := range list {
		out = append(out, fromGQLError(e))
	}
	return out
}

func fromGQLError(e *gqlerror.Error) *GraphQLError {
	out := &GraphQLError{Message: e.Message, cause: e}
	for _, loc := range e.Locations {
		out.Locations = append(out.Locations, Location{Line: loc.Line, Column: loc.Column})
	}
	if len(e.Extensions) > 0 {
		out.Extensions = make(map[string]any, len(e.Extensions))
		for k, v := range e.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// NewCancellationError reports an execution aborted by ctx.
func NewCancellationError(cause error) *GraphQLError {
	msg := "Execution was cancelled."
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "Execution timed out."
	}
	return &GraphQLError{
		Message:    msg,
		Extensions: map[string]any{"code": string(CodeCancelled)},
		cause:      cause,
	}
}

// ResultFromError turns a planning failure into a result without data.
func ResultFromError(err error) *ExecutionResult {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return &ExecutionResult{Errors: reqErr.Errors}
	}
	return &ExecutionResult{Errors: []*GraphQLError{{Message: err.Error(), cause: err}}}
}

// extensionsProvider lets resolver errors attach client-visible extensions.
type extensionsProvider interface {
	Extensions() map[string]any
}

func locationsOf(nodes []*language.Field) []Location {
	var out []Location
	for _, n := range nodes {
		if n.Position != nil {
			out = append(out, Location{Line: n.Position.Line, Column: n.Position.Column})
			break
		}
	}
	return out
}

func newFieldError(err error, nodes []*language.Field, path Path, order []int) *GraphQLError {
	out := &GraphQLError{
		Message:   err.Error(),
		Locations: locationsOf(nodes),
		Path:      path,
		cause:     err,
		order:     order,
	}
	var gqlErr *gqlerror.Error
	var gErr *GraphQLError
	var ext extensionsProvider
	switch {
	case errors.As(err, &gErr):
		out.Message = gErr.Message
		out.Extensions = gErr.Extensions
	case errors.As(err, &gqlErr):
		out.Message = gqlErr.Message
		if len(gqlErr.Extensions) > 0 {
			out.Extensions = gqlErr.Extensions
		}
	case errors.As(err, &ext):
		out.Extensions = ext.Extensions()
	}
	return out
}

// errorList is the append-only error sink shared by all goroutines of one
// execution. At most one error is kept per response path.
type errorList struct {
	mu     sync.Mutex
	errs   []*GraphQLError
	byPath map[string]struct{}
	seq    uint64
}

func newErrorList() *errorList {
	return &errorList{byPath: make(map[string]struct{})}
}

// add records e unless an error already exists at its path.
func (l *errorList) add(e *GraphQLError) bool {
	key := pathToString(e.Path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(e.Path) > 0 {
		if _, dup := l.byPath[key]; dup {
			return false
		}
		l.byPath[key] = struct{}{}
	}
	l.seq++
	e.seq = l.seq
	l.errs = append(l.errs, e)
	return true
}

func (l *errorList) has(path Path) bool {
	key := pathToString(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byPath[key]
	return ok
}

// sorted returns the errors ordered by the selection order of their paths,
// independent of which goroutine finished first.
func (l *errorList) sorted() []*GraphQLError {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	out := slices.Clone(l.errs)
	slices.SortStableFunc(out, func(a, b *GraphQLError) int {
		if c := slices.Compare(a.order, b.order); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

func nonNullError(parentType, fieldName string) error {
	return fmt.Errorf("Cannot return null for non-nullable field %s.%s.", parentType, fieldName)
}
