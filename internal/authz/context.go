package authz

import "context"

// Context is the typed state accumulated by the chain for one request.
type Context struct {
	// ServiceRole is set when the caller presented the service key.
	ServiceRole string
	// UserID and UserRole are set from a verified bearer token.
	UserID   string
	UserRole string
}

// Authenticated reports whether a verified user identity is attached.
func (c *Context) Authenticated() bool { return c != nil && c.UserID != "" }

// EffectiveRole is the role used by role checks. The service role takes
// precedence over the token role.
func (c *Context) EffectiveRole() string {
	if c == nil {
		return ""
	}
	if c.ServiceRole != "" {
		return c.ServiceRole
	}
	return c.UserRole
}

type contextKey struct{}

// WithContext attaches ac to ctx.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the attached Context or an empty one.
func FromContext(ctx context.Context) *Context {
	if ac, ok := ctx.Value(contextKey{}).(*Context); ok && ac != nil {
		return ac
	}
	return &Context{}
}
