// Package tools provides the MCP tools of the FAR audit server.
package tools

import (
	"context"
	"fmt"
)

// ScopeFunc attaches a database scope to ctx and returns its release func.
// database.ScopeProvider.WithScope satisfies it.
type ScopeFunc func(ctx context.Context) (context.Context, func(), error)

// acquireScope runs scope when one is configured. Tools that only read
// in-memory state never call it.
func acquireScope(ctx context.Context, scope ScopeFunc) (context.Context, func(), error) {
	if scope == nil {
		return ctx, func() {}, nil
	}
	scoped, release, err := scope(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return scoped, release, nil
}
