package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries the identity and tracing information for the
// lifetime of an authenticated request. It is immutable after construction
// and safe for concurrent reads.
//
// HighPrivilege records whether the presented credential carries step-up
// authentication context; the engine consumes only this boolean and never
// touches credential material.
type RequestContext struct {
	EntityID      string
	EntityType    EntityType
	Email         string
	HighPrivilege bool
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Entity returns the EntityRef for the authenticated identity.
func (rc *RequestContext) Entity() EntityRef {
	return EntityRef{ID: rc.EntityID, Type: rc.EntityType}
}

// Validate checks that all mandatory fields are present.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.EntityID == "" {
		errs = append(errs, fmt.Errorf("EntityID is required"))
	}
	if rc.EntityType != EntityUser && rc.EntityType != EntityAgent {
		errs = append(errs, fmt.Errorf("EntityType must be user or agent"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or
// returns nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context,
// panicking if it is not present. Safe to call in handlers guaranteed to
// run behind the authentication middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
