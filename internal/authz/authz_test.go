package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"advent/internal/db"
)

type fakeTokens map[string]int64

func (f fakeTokens) Verify(tok string) (int64, error) {
	if uid, ok := f[tok]; ok {
		return uid, nil
	}
	return 0, errors.New("invalid")
}

type fakeUsers struct {
	users map[int64]db.User
	err   error
}

func (f fakeUsers) GetUserByID(_ context.Context, uid int64) (*db.User, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	u, ok := f.users[uid]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var testUsers = fakeUsers{users: map[int64]db.User{
	1: {UID: 1, Name: "admin", Admin: true},
	2: {UID: 2, Name: "helper", Admin: true},
	3: {UID: 3, Name: "reader"},
}}

func TestAuthenticate(t *testing.T) {
	e := New(fakeTokens{"good": 3}, testUsers, testLogger())
	if !e.Authenticate("good") {
		t.Fatalf("expected good token to authenticate")
	}
	if e.Authenticate("bad") {
		t.Fatalf("expected bad token to fail")
	}
	if uid, ok := e.CurrentUID("good"); !ok || uid != 3 {
		t.Fatalf("CurrentUID=%d ok=%v", uid, ok)
	}
}

func TestIsAdmin(t *testing.T) {
	e := New(fakeTokens{}, testUsers, testLogger())
	ctx := context.Background()
	if !e.IsAdmin(ctx, 2) {
		t.Fatalf("expected uid 2 to be admin")
	}
	if e.IsAdmin(ctx, 3) || e.IsAdmin(ctx, 99) || e.IsAdmin(ctx, 0) {
		t.Fatalf("expected non-admins to be denied")
	}
}

// TestStoreFailureDenies checks every predicate fails closed.
func TestStoreFailureDenies(t *testing.T) {
	e := New(fakeTokens{}, fakeUsers{err: errors.New("db down")}, testLogger())
	ctx := context.Background()
	if e.IsAdmin(ctx, 1) {
		t.Fatalf("IsAdmin must deny on store failure")
	}
	if e.IsSelfOrAdmin(ctx, 3, 1) {
		t.Fatalf("IsSelfOrAdmin must deny on store failure")
	}
	if !e.IsProtectedTarget(ctx, 3, 1) {
		t.Fatalf("IsProtectedTarget must protect on store failure")
	}
}

// TestIsSelfOrAdmin lets the admin account act for anyone.
func TestIsSelfOrAdmin(t *testing.T) {
	e := New(fakeTokens{}, testUsers, testLogger())
	ctx := context.Background()
	if !e.IsSelfOrAdmin(ctx, 3, 3) {
		t.Fatalf("self should be allowed")
	}
	if !e.IsSelfOrAdmin(ctx, 3, 1) {
		t.Fatalf("admin account should be allowed for any target")
	}
	if e.IsSelfOrAdmin(ctx, 1, 2) {
		t.Fatalf("admin-flagged helper is not the admin account")
	}
}

func TestIsProtectedTarget(t *testing.T) {
	e := New(fakeTokens{}, testUsers, testLogger())
	ctx := context.Background()
	if !e.IsProtectedTarget(ctx, 2, 2) {
		t.Fatalf("self is protected")
	}
	if !e.IsProtectedTarget(ctx, 1, 2) {
		t.Fatalf("admin account is protected")
	}
	if e.IsProtectedTarget(ctx, 3, 2) {
		t.Fatalf("regular user is not protected")
	}
	if e.IsProtectedTarget(ctx, 99, 2) {
		t.Fatalf("missing user is not protected")
	}
}
