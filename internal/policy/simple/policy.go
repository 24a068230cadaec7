// Package simple contains the pass-through limiter used when rate limiting is disabled.
package simple

import (
	"context"
	"fmt"
)

// Policy never delays a request.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Wait returns immediately unless ctx is already done.
func (Policy) Wait(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait canceled: %w", err)
	}
	return nil
}
