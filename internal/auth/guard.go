package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Authorize admits id when its role is one of allowed.
func Authorize(id Identity, allowed ...Role) error {
	if id.IsZero() {
		return ErrUnauthenticated
	}
	if !slices.Contains(allowed, id.Role) {
		return fmt.Errorf("%w: role %s not permitted", ErrForbidden, id.Role)
	}
	return nil
}

// Guard makes decisions that need to look at identities other than the caller.
type Guard struct {
	identities IdentityFinder
}

// NewGuard returns a Guard resolving target identities through f.
func NewGuard(f IdentityFinder) *Guard {
	return &Guard{identities: f}
}

// AuthorizeAssignment decides whether caller may make ownerID the owner of a
// lead. Self-assignment and an empty owner are always admitted without I/O.
// Otherwise the caller must be ADMIN or MANAGER and share a company with the
// target; identities without a company may only assign to themselves.
func (g *Guard) AuthorizeAssignment(ctx context.Context, caller Identity, ownerID string) error {
	if caller.IsZero() {
		return ErrUnauthenticated
	}
	if ownerID == "" || ownerID == caller.ID {
		return nil
	}
	if caller.Role != RoleAdmin && caller.Role != RoleManager {
		return fmt.Errorf("%w: %s cannot assign leads to others", ErrForbidden, caller.Role)
	}
	target, err := g.identities.FindIdentityByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: assignee %s", ErrNotFound, ownerID)
		}
		return err
	}
	callerCompany, callerOK := caller.Company()
	targetCompany, targetOK := target.Company()
	if !callerOK || !targetOK {
		return fmt.Errorf("%w: assignment requires a shared company", ErrForbidden)
	}
	if callerCompany != targetCompany {
		return fmt.Errorf("%w: assignee belongs to another company", ErrForbidden)
	}
	return nil
}
