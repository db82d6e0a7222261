// Package authz evaluates the ordered authorization chain that runs before
// every use case: service key, bearer token, account standing, and the
// per-operation role check.
package authz

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/metrics"
)

// Stage names, also used as metric labels.
const (
	StageServiceKey = "service_key"
	StageBearer     = "bearer"
	StageStanding   = "standing"
	StageRole       = "role"
	StageUser       = "user"
)

// Request carries the credentials a check may read.
type Request struct {
	ServiceKey    string
	Authorization string
}

// Decision is the result of a check: continue, or deny with a classified
// error.
type Decision struct {
	stage string
	err   *apperr.Error
}

// Continue lets the chain proceed.
func Continue() Decision { return Decision{} }

// Deny stops the chain at stage.
func Deny(stage string, err *apperr.Error) Decision {
	return Decision{stage: stage, err: err}
}

// Denied reports whether the decision is terminal.
func (d Decision) Denied() bool { return d.err != nil }

// Stage names the check that denied.
func (d Decision) Stage() string { return d.stage }

// Err returns the denial error or nil.
func (d Decision) Err() error {
	if d.err == nil {
		return nil
	}
	return d.err
}

// Check is one stage of the chain.
type Check struct {
	Stage string
	Run   func(ctx context.Context, req Request, ac *Context) Decision
}

// Chain runs its checks in order and stops at the first denial.
type Chain struct {
	checks []Check
}

// NewChain builds a chain from checks in evaluation order.
func NewChain(checks ...Check) *Chain {
	return &Chain{checks: checks}
}

// Evaluate runs the chain and returns the accumulated context.
func (c *Chain) Evaluate(ctx context.Context, req Request) (*Context, Decision) {
	ac := &Context{}
	for _, check := range c.checks {
		if d := check.Run(ctx, req, ac); d.Denied() {
			metrics.Denied(d.Stage())
			return ac, d
		}
	}
	return ac, Continue()
}

// ServiceKey requires the shared service key and grants role to callers
// that present it.
func ServiceKey(expected, role string) Check {
	return Check{Stage: StageServiceKey, Run: func(_ context.Context, req Request, ac *Context) Decision {
		if req.ServiceKey == "" {
			return Deny(StageServiceKey, apperr.Unauthorized("missing service key"))
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(req.ServiceKey), []byte(expected)) != 1 {
			return Deny(StageServiceKey, apperr.Unauthorized("invalid service key"))
		}
		ac.ServiceRole = role
		return Continue()
	}}
}

// Identity is what a verified bearer token asserts.
type Identity struct {
	UserID string
	Role   string
}

// IdentifyFunc verifies a raw bearer token.
type IdentifyFunc func(raw string) (Identity, error)

// Bearer verifies an Authorization bearer token when one is present. A
// request without the header continues anonymously.
func Bearer(identify IdentifyFunc) Check {
	return Check{Stage: StageBearer, Run: func(_ context.Context, req Request, ac *Context) Decision {
		header := strings.TrimSpace(req.Authorization)
		if header == "" {
			return Continue()
		}
		scheme, raw, ok := strings.Cut(header, " ")
		raw = strings.TrimSpace(raw)
		if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
			return Deny(StageBearer, apperr.Unauthorized("invalid token"))
		}
		id, err := identify(raw)
		if err != nil || id.UserID == "" {
			return Deny(StageBearer, apperr.Unauthorized("invalid token"))
		}
		ac.UserID = id.UserID
		ac.UserRole = id.Role
		return Continue()
	}}
}

// BannedFunc reports whether the user is banned. A missing user must be
// reported as an apperr not-found error.
type BannedFunc func(ctx context.Context, userID string) (bool, error)

// Standing denies banned or unknown users. It does nothing for anonymous
// requests.
func Standing(banned BannedFunc) Check {
	return Check{Stage: StageStanding, Run: func(ctx context.Context, _ Request, ac *Context) Decision {
		if !ac.Authenticated() {
			return Continue()
		}
		isBanned, err := banned(ctx, ac.UserID)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				return Deny(StageStanding, appErr)
			}
			return Deny(StageStanding, &apperr.Error{Kind: apperr.KindStore, Message: "check account standing", Err: err})
		}
		if isBanned {
			return Deny(StageStanding, apperr.Forbidden("account is banned"))
		}
		return Continue()
	}}
}

// RequireRole denies unless the effective role is in allowed.
func RequireRole(ac *Context, allowed ...string) Decision {
	role := ac.EffectiveRole()
	if role != "" {
		for _, a := range allowed {
			if a == role {
				return Continue()
			}
		}
	}
	metrics.Denied(StageRole)
	return Deny(StageRole, apperr.Forbidden("insufficient role"))
}

// RequireUser denies requests without a verified user identity.
func RequireUser(ac *Context) Decision {
	if ac.Authenticated() {
		return Continue()
	}
	metrics.Denied(StageUser)
	return Deny(StageUser, apperr.Unauthorized("authentication required"))
}
