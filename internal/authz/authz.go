// Package authz answers the authorization questions asked by the HTTP
// handlers and the bulk transports. Every store failure resolves to deny.
package authz

import (
	"context"
	"log/slog"

	"advent/internal/db"
)

// AdminAccount is the name of the protected account created by setup.
// It can never be demoted or deleted.
const AdminAccount = "admin"

// TokenVerifier resolves a signed session token to a uid.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// UserStore is the part of the credential store the evaluator reads.
type UserStore interface {
	GetUserByID(ctx context.Context, uid int64) (*db.User, bool, error)
}

type Evaluator struct {
	tokens TokenVerifier
	users  UserStore
	log    *slog.Logger
}

func New(tokens TokenVerifier, users UserStore, lg *slog.Logger) *Evaluator {
	return &Evaluator{tokens: tokens, users: users, log: lg.With("component", "authz")}
}

// Authenticate reports whether token verifies.
func (e *Evaluator) Authenticate(token string) bool {
	_, ok := e.CurrentUID(token)
	return ok
}

// CurrentUID returns the uid bound by token.
func (e *Evaluator) CurrentUID(token string) (int64, bool) {
	uid, err := e.tokens.Verify(token)
	if err != nil {
		return 0, false
	}
	return uid, true
}

// IsAdmin reads the admin flag of uid. Unknown users are not admins.
func (e *Evaluator) IsAdmin(ctx context.Context, uid int64) bool {
	u, ok := e.lookup(ctx, uid)
	return ok && u.Admin
}

// IsSelfOrAdmin is true when target is the requester, or the requester is
// the admin account, which may act on any target.
func (e *Evaluator) IsSelfOrAdmin(ctx context.Context, target, requester int64) bool {
	if target > 0 && target == requester {
		return true
	}
	u, ok := e.lookup(ctx, requester)
	return ok && u.Name == AdminAccount
}

// IsProtectedTarget is true when target is the requester or the admin
// account. Such targets cannot be deleted or lose the admin flag.
// A failed lookup counts as protected.
func (e *Evaluator) IsProtectedTarget(ctx context.Context, target, requester int64) bool {
	if target == requester {
		return true
	}
	u, found, err := e.users.GetUserByID(ctx, target)
	if err != nil {
		e.log.ErrorContext(ctx, "authorization lookup failed", "event", "authz.store_failure", "uid", target, "err", err)
		return true
	}
	return found && u.Name == AdminAccount
}

func (e *Evaluator) lookup(ctx context.Context, uid int64) (*db.User, bool) {
	if uid <= 0 {
		return nil, false
	}
	u, found, err := e.users.GetUserByID(ctx, uid)
	if err != nil {
		e.log.ErrorContext(ctx, "authorization lookup failed", "event", "authz.store_failure", "uid", uid, "err", err)
		return nil, false
	}
	return u, found
}
