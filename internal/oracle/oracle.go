package oracle

import (
	"context"
	"strings"
)

// Response is what the target revealed for one candidate token.
// A probe that never reached the target has Err set, an empty Body and Status 0.
type Response struct {
	Body   string
	Status int
	Err    error
}

func (r Response) Reached() bool { return r.Err == nil }

// Oracle submits a candidate token and reports the target's answer.
// Transport failures are reported inside the Response, never as a panic or a separate error.
type Oracle interface {
	Submit(ctx context.Context, token []byte) Response
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, token []byte) Response

func (f Func) Submit(ctx context.Context, token []byte) Response { return f(ctx, token) }

// Predicate decides whether a response signals success.
type Predicate func(Response) bool

// Contains matches reachable responses whose body contains substr.
func Contains(substr string) Predicate {
	return func(r Response) bool {
		return r.Reached() && r.Body != "" && strings.Contains(r.Body, substr)
	}
}
