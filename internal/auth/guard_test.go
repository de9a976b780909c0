package auth

import (
	"context"
	"errors"
	"testing"
)

type stubFinder struct {
	identities map[string]Identity
	calls      int
}

func (s *stubFinder) FindIdentityByID(_ context.Context, id string) (Identity, error) {
	s.calls++
	v, ok := s.identities[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return v, nil
}

func company(id string) *string { return &id }

func TestAuthorize(t *testing.T) {
	admin := Identity{ID: "a", Role: RoleAdmin}
	exec := Identity{ID: "e", Role: RoleSalesExecutive}

	if err := Authorize(admin, RoleAdmin, RoleManager); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := Authorize(exec, RoleAdmin, RoleManager); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := Authorize(Identity{}, RoleAdmin); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAuthorizeAssignment(t *testing.T) {
	finder := &stubFinder{identities: map[string]Identity{
		"t7":       {ID: "t7", Role: RoleSalesExecutive, CompanyID: company("7")},
		"t5":       {ID: "t5", Role: RoleSalesExecutive, CompanyID: company("5")},
		"homeless": {ID: "homeless", Role: RoleSalesExecutive},
	}}
	g := NewGuard(finder)
	ctx := context.Background()

	exec5 := Identity{ID: "e5", Role: RoleSalesExecutive, CompanyID: company("5")}
	mgr5 := Identity{ID: "m5", Role: RoleManager, CompanyID: company("5")}
	adminNoCompany := Identity{ID: "a0", Role: RoleAdmin}

	cases := []struct {
		name      string
		caller    Identity
		owner     string
		want      error
		wantCalls int
	}{
		{"self", exec5, "e5", nil, 0},
		{"empty owner", exec5, "", nil, 0},
		{"exec to other company", exec5, "t7", ErrForbidden, 0},
		{"exec to same company", exec5, "t5", ErrForbidden, 0},
		{"manager to other company", mgr5, "t7", ErrForbidden, 1},
		{"manager to same company", mgr5, "t5", nil, 1},
		{"manager to missing", mgr5, "ghost", ErrNotFound, 1},
		{"manager to companyless", mgr5, "homeless", ErrForbidden, 1},
		{"companyless admin", adminNoCompany, "t5", ErrForbidden, 1},
		{"no caller", Identity{}, "t5", ErrUnauthenticated, 0},
	}
	for _, tc := range cases {
		finder.calls = 0
		err := g.AuthorizeAssignment(ctx, tc.caller, tc.owner)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
		if finder.calls != tc.wantCalls {
			t.Fatalf("%s: store calls = %d, want %d", tc.name, finder.calls, tc.wantCalls)
		}
	}
}

func TestAuthorizeAssignmentPropagatesStoreFailure(t *testing.T) {
	g := NewGuard(failingFinder{})
	caller := Identity{ID: "m", Role: RoleManager, CompanyID: company("5")}
	if err := g.AuthorizeAssignment(context.Background(), caller, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type failingFinder struct{}

func (failingFinder) FindIdentityByID(context.Context, string) (Identity, error) {
	return Identity{}, ErrUnavailable
}
