package auth

import (
	"context"
	"errors"
	"testing"
)

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	if _, err := RequireRole(ctx, RoleUser); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	userCtx := ContextWithPrincipal(ctx, Principal{UserID: "u1", Email: "user@example.com", Role: RoleUser})
	if _, err := RequireRole(userCtx, RoleUser); err != nil {
		t.Fatalf("user should satisfy USER: %v", err)
	}
	if _, err := RequireRole(userCtx, RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	adminCtx := ContextWithPrincipal(ctx, Principal{UserID: "u2", Email: "admin@example.com", Role: RoleAdmin})
	p, err := RequireRole(adminCtx, RoleUser)
	if err != nil {
		t.Fatalf("admin should satisfy USER: %v", err)
	}
	if p.Email != "admin@example.com" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestContextToken(t *testing.T) {
	ctx := ContextWithToken(context.Background(), "")
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatalf("empty token must not be stored")
	}
	ctx = ContextWithToken(ctx, "abc")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "abc" {
		t.Fatalf("unexpected token %q", tok)
	}
	if IsAuthenticated(ctx) {
		t.Fatalf("token alone must not authenticate")
	}
}

func TestRoleElevation(t *testing.T) {
	cases := []struct {
		caller, target RoleName
		want           bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleUser, true},
		{RoleName("ROOT"), RoleUser, false},
	}
	for _, tc := range cases {
		if got := tc.caller.CanAssign(tc.target); got != tc.want {
			t.Errorf("%s.CanAssign(%s) = %v, want %v", tc.caller, tc.target, got, tc.want)
		}
	}

	name, err := ParseRoleName(" admin ")
	if err != nil || name != RoleAdmin {
		t.Fatalf("ParseRoleName: %v %q", err, name)
	}
	if _, err := ParseRoleName("superuser"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
