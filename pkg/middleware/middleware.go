// Package middleware provides the HTTP middleware stack and the CORS and
// request logging middleware mounted on every module.
package middleware

import (
	"net/http"
	"slices"
)

// Func wraps a handler with additional behavior.
type Func = func(http.Handler) http.Handler

// System manages an ordered stack of HTTP middleware. The first middleware
// added is the outermost.
type System interface {
	Use(fns ...Func)
	Apply(handler http.Handler) http.Handler
}

type stack []Func

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(fns ...Func) {
	*s = append(*s, fns...)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for _, fn := range slices.Backward(*s) {
		handler = fn(handler)
	}
	return handler
}
