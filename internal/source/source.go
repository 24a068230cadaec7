// Package source holds what the upstream adapters share: the HTTP port they
// fetch through and the schema error they report.
package source

import (
	"context"
	"errors"
	"fmt"

	collyfetcher "github.com/JakeFAU/release-tracker/internal/fetcher/colly"
)

// ErrSchemaMismatch is matched by every *SchemaError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaError reports an upstream payload that does not have the expected shape.
type SchemaError struct {
	Source string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: schema mismatch: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: schema mismatch: %s", e.Source, e.Reason)
}

// Is lets errors.Is match ErrSchemaMismatch.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// HTTPFetcher is the slice of the colly fetcher the sources use.
type HTTPFetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}
