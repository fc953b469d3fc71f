package authz

import (
	"context"
	"fmt"
	"log/slog"
)

// Request identifies one authorization check.
type Request struct {
	CallerID   string
	UpstreamID string
	RouteID    string
	Action     string
}

// Decision is the resolver's verdict.
type Decision struct {
	Allowed bool
	Reason  string
}

// Resolver decides whether a caller may use a route. Implementations
// live outside the gateway; AllowAll is the in-process default.
type Resolver interface {
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// DeniedError reports a resolver denial.
type DeniedError struct {
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return "authorization denied"
	}
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// Gate wraps a resolver for the pipeline.
type Gate struct {
	resolver Resolver
}

// NewGate creates a gate over resolver. A nil resolver allows all.
func NewGate(resolver Resolver) *Gate {
	if resolver == nil {
		resolver = AllowAll{}
	}
	return &Gate{resolver: resolver}
}

// Check consults the resolver once. A denial returns DeniedError; a
// resolver failure is returned wrapped, with the original error still
// reachable through errors.Is and errors.As.
func (g *Gate) Check(ctx context.Context, req Request) error {
	decision, err := g.resolver.Authorize(ctx, req)
	if err != nil {
		return fmt.Errorf("authorization resolver: %w", err)
	}
	if !decision.Allowed {
		slog.Debug("authorization denied",
			"caller_id", req.CallerID,
			"upstream_id", req.UpstreamID,
			"route_id", req.RouteID,
			"reason", decision.Reason,
		)
		return &DeniedError{Reason: decision.Reason}
	}
	return nil
}

// AllowAll approves every request.
type AllowAll struct{}

// Authorize approves unconditionally.
func (AllowAll) Authorize(_ context.Context, _ Request) (Decision, error) {
	return Decision{Allowed: true}, nil
}
