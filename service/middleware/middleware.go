// package middleware provides the generic stage chain every gateway
// method and subscription is served through
package middleware

import (
	"context"
)

// Next continues processing of a request with the remainder of a chain
type Next[Req any, Res any] func(ctx context.Context, req Req) (Res, error)

// Middleware is one stage of a chain. A stage may answer without calling
// next, call next with the request unchanged or transformed, or inspect
// the result of next before returning it.
type Middleware[Req any, Res any] interface {
	Handle(ctx context.Context, req Req, next Next[Req, Res]) (Res, error)
}

// Func adapts a function to the Middleware interface
type Func[Req any, Res any] func(ctx context.Context, req Req, next Next[Req, Res]) (Res, error)

// Handle implements Middleware
func (f Func[Req, Res]) Handle(ctx context.Context, req Req, next Next[Req, Res]) (Res, error) {
	return f(ctx, req, next)
}

// Chain is an ordered, immutable list of stages ending in a terminal
// continuation that runs when the last stage calls next.
// A Chain is safe for concurrent use.
type Chain[Req any, Res any] struct {
	stages   []Middleware[Req, Res]
	terminal Next[Req, Res]
}

// NewChain returns a chain of stages whose terminal fails every
// request reaching it with ErrBadConfiguration
func NewChain[Req any, Res any](stages ...Middleware[Req, Res]) *Chain[Req, Res] {
	return NewChainWithTerminal(badConfiguration[Req, Res], stages...)
}

// NewChainWithTerminal returns a chain of stages ending in terminal
func NewChainWithTerminal[Req any, Res any](terminal Next[Req, Res], stages ...Middleware[Req, Res]) *Chain[Req, Res] {
	return &Chain[Req, Res]{
		stages:   append([]Middleware[Req, Res](nil), stages...),
		terminal: terminal,
	}
}

// Len returns the number of stages in the chain
func (c *Chain[Req, Res]) Len() int {
	return len(c.stages)
}

// Call runs req through the chain
func (c *Chain[Req, Res]) Call(ctx context.Context, req Req) (Res, error) {
	return c.next(0)(ctx, req)
}

func (c *Chain[Req, Res]) next(i int) Next[Req, Res] {
	if i >= len(c.stages) {
		return c.terminal
	}

	return func(ctx context.Context, req Req) (Res, error) {
		return c.stages[i].Handle(ctx, req, c.next(i+1))
	}
}

func badConfiguration[Req any, Res any](context.Context, Req) (Res, error) {
	var zero Res
	return zero, ErrBadConfiguration
}
