package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"leadtrack.io/internal/audit"
	"leadtrack.io/internal/ids"
)

// CompanyDetail is a company together with its members.
type CompanyDetail struct {
	Company
	Users []Identity `json:"users"`
}

// CompanyInput carries the fields accepted when creating a company.
type CompanyInput struct {
	Name string
	Size *int
}

// CompanyUpdate is a partial company update; nil fields are left untouched.
type CompanyUpdate struct {
	Name *string
	Size *int
}

// UserUpdate is a partial identity update; nil fields are left untouched.
type UserUpdate struct {
	Name  *string
	Email *string
	Role  *string
}

// Directory administers companies and company membership. ADMIN acts on any
// company; MANAGER is confined to its own.
type Directory struct {
	store DirectoryStore
	now   func() time.Time
}

// NewDirectory constructs a Directory. A nil clock means time.Now.
func NewDirectory(store DirectoryStore, now func() time.Time) (*Directory, error) {
	if store == nil {
		return nil, errors.New("auth: directory store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Directory{store: store, now: now}, nil
}

// CreateCompany registers a company. Names are unique.
func (d *Directory) CreateCompany(ctx context.Context, in CompanyInput) (Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	size := 0
	if in.Size != nil {
		size = *in.Size
	}
	err := validation.Errors{
		"name": validation.Validate(in.Name, validation.Required, validation.Length(1, 200)),
		"size": validation.Validate(size, validation.Min(0)),
	}.Filter()
	if err != nil {
		return Company{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := d.now().UTC()
	c := Company{ID: ids.NewAt(now), Name: in.Name, Size: size, CreatedAt: now, UpdatedAt: now}
	if err := d.store.CreateCompany(ctx, &c); err != nil {
		return Company{}, err
	}
	_ = audit.LogEvent(ctx, "company.created", map[string]any{"company_id": c.ID, "name": c.Name})
	return c, nil
}

// ListCompanies returns every company with its members.
func (d *Directory) ListCompanies(ctx context.Context, actor Identity) ([]CompanyDetail, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	companies, err := d.store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CompanyDetail, 0, len(companies))
	for _, c := range companies {
		members, err := d.store.ListIdentitiesByCompany(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CompanyDetail{Company: c, Users: members})
	}
	return out, nil
}

// GetCompany returns one company with its members.
func (d *Directory) GetCompany(ctx context.Context, actor Identity, id string) (CompanyDetail, error) {
	if actor.IsZero() {
		return CompanyDetail{}, ErrUnauthenticated
	}
	id, err := requireID(id, "company")
	if err != nil {
		return CompanyDetail{}, err
	}
	c, err := d.store.FindCompanyByID(ctx, id)
	if err != nil {
		return CompanyDetail{}, err
	}
	members, err := d.store.ListIdentitiesByCompany(ctx, id)
	if err != nil {
		return CompanyDetail{}, err
	}
	return CompanyDetail{Company: c, Users: members}, nil
}

// UpdateCompany applies upd to the company. ADMIN or MANAGER only.
func (d *Directory) UpdateCompany(ctx context.Context, actor Identity, id string, upd CompanyUpdate) (Company, error) {
	if err := Authorize(actor, RoleAdmin, RoleManager); err != nil {
		return Company{}, err
	}
	id, err := requireID(id, "company")
	if err != nil {
		return Company{}, err
	}
	if err := confineToCompany(actor, id); err != nil {
		return Company{}, err
	}
	c, err := d.store.FindCompanyByID(ctx, id)
	if err != nil {
		return Company{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
		}
		c.Name = name
	}
	if upd.Size != nil {
		if *upd.Size < 0 {
			return Company{}, fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
		}
		c.Size = *upd.Size
	}
	c.UpdatedAt = d.now().UTC()
	if err := d.store.UpdateCompany(ctx, &c); err != nil {
		return Company{}, err
	}
	_ = audit.LogEvent(ctx, "company.updated", map[string]any{"company_id": c.ID})
	return c, nil
}

// DeleteCompany removes a company without members. ADMIN only.
func (d *Directory) DeleteCompany(ctx context.Context, actor Identity, id string) error {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return err
	}
	id, err := requireID(id, "company")
	if err != nil {
		return err
	}
	if err := d.store.DeleteCompany(ctx, id); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w: company has associated users", ErrConflict)
		}
		return err
	}
	_ = audit.LogEvent(ctx, "company.deleted", map[string]any{"company_id": id})
	return nil
}

// AssignCompany moves userID into companyID. ADMIN or MANAGER only; a
// MANAGER may only place company-less users or its own members, never an ADMIN.
func (d *Directory) AssignCompany(ctx context.Context, actor Identity, userID, companyID string) (Identity, error) {
	if err := Authorize(actor, RoleAdmin, RoleManager); err != nil {
		return Identity{}, err
	}
	userID, err := requireID(userID, "user")
	if err != nil {
		return Identity{}, err
	}
	companyID, err = requireID(companyID, "company")
	if err != nil {
		return Identity{}, err
	}
	if err := confineToCompany(actor, companyID); err != nil {
		return Identity{}, err
	}
	if _, err := d.store.FindCompanyByID(ctx, companyID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: company %s", ErrNotFound, companyID)
		}
		return Identity{}, err
	}
	target, err := d.store.FindIdentityByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return Identity{}, err
	}
	if actor.Role == RoleManager {
		if target.Role == RoleAdmin {
			return Identity{}, fmt.Errorf("%w: cannot reassign an ADMIN", ErrForbidden)
		}
		if current, ok := target.Company(); ok && current != companyID {
			return Identity{}, fmt.Errorf("%w: user belongs to another company", ErrForbidden)
		}
	}
	target.CompanyID = &companyID
	target.UpdatedAt = d.now().UTC()
	if err := d.store.UpdateIdentity(ctx, &target); err != nil {
		return Identity{}, err
	}
	_ = audit.LogEvent(ctx, "user.company.assigned", map[string]any{"user_id": userID, "company_id": companyID})
	return target, nil
}

// ListCompanyUsers returns the members of companyID.
func (d *Directory) ListCompanyUsers(ctx context.Context, actor Identity, companyID string) ([]Identity, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	companyID, err := requireID(companyID, "company")
	if err != nil {
		return nil, err
	}
	return d.store.ListIdentitiesByCompany(ctx, companyID)
}

// UpdateUser edits another identity's name, email or role. ADMIN or MANAGER
// only; a MANAGER is limited to non-ADMIN members of its company and cannot
// grant ADMIN.
func (d *Directory) UpdateUser(ctx context.Context, actor Identity, userID string, upd UserUpdate) (Identity, error) {
	if err := Authorize(actor, RoleAdmin, RoleManager); err != nil {
		return Identity{}, err
	}
	userID, err := requireID(userID, "user")
	if err != nil {
		return Identity{}, err
	}
	target, err := d.store.FindIdentityByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	if actor.Role == RoleManager {
		if target.Role == RoleAdmin {
			return Identity{}, fmt.Errorf("%w: cannot edit an ADMIN", ErrForbidden)
		}
		company, ok := target.Company()
		if !ok {
			return Identity{}, fmt.Errorf("%w: user belongs to no company", ErrForbidden)
		}
		if err := confineToCompany(actor, company); err != nil {
			return Identity{}, err
		}
	}
	if upd.Name != nil {
		target.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if err := validation.Validate(email, validation.Required, is.Email); err != nil {
			return Identity{}, fmt.Errorf("%w: email: %v", ErrInvalidInput, err)
		}
		target.Email = email
	}
	if upd.Role != nil {
		role := ParseRole(*upd.Role)
		if role == RoleAdmin && actor.Role != RoleAdmin {
			return Identity{}, fmt.Errorf("%w: only ADMIN may grant ADMIN", ErrForbidden)
		}
		target.Role = role
	}
	target.UpdatedAt = d.now().UTC()
	if err := d.store.UpdateIdentity(ctx, &target); err != nil {
		if errors.Is(err, ErrConflict) {
			return Identity{}, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return Identity{}, err
	}
	_ = audit.LogEvent(ctx, "user.updated", map[string]any{"user_id": target.ID, "role": string(target.Role)})
	return target, nil
}

func confineToCompany(actor Identity, companyID string) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	own, ok := actor.Company()
	if !ok || own != companyID {
		return fmt.Errorf("%w: outside own company", ErrForbidden)
	}
	return nil
}

func requireID(raw, what string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !ids.Valid(raw) {
		return "", fmt.Errorf("%w: invalid %s id", ErrInvalidInput, what)
	}
	return raw, nil
}
