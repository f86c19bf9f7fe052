package auth

import "context"

// RequireRole returns the principal from ctx if it holds at least the minimum role.
func RequireRole(ctx context.Context, minimum RoleName) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, newError(ErrUnauthenticated, nil, "authentication is required")
	}
	if !p.Role.CanAssign(minimum) {
		return Principal{}, newError(ErrForbidden, nil, "role %s is required", minimum)
	}
	return p, nil
}
