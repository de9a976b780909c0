// Package memory keeps identities, companies and leads in process memory.
// It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/ids"
	"leadtrack.io/internal/lead"
)

// Store implements auth.DirectoryStore and lead.Store behind one mutex.
type Store struct {
	mu         sync.RWMutex
	identities map[string]auth.Identity
	byEmail    map[string]string
	companies  map[string]auth.Company
	refresh    map[string]auth.RefreshToken
	leads      map[string]lead.Lead
	history    map[string][]lead.History
}

// New returns an empty store.
func New() *Store {
	return &Store{
		identities: make(map[string]auth.Identity),
		byEmail:    make(map[string]string),
		companies:  make(map[string]auth.Company),
		refresh:    make(map[string]auth.RefreshToken),
		leads:      make(map[string]lead.Lead),
		history:    make(map[string][]lead.History),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func cloneIdentity(id auth.Identity) auth.Identity {
	if id.CompanyID != nil {
		c := *id.CompanyID
		id.CompanyID = &c
	}
	return id
}

// FindIdentityByID returns the identity with id or auth.ErrNotFound.
func (s *Store) FindIdentityByID(_ context.Context, id string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return cloneIdentity(v), nil
}

// FindIdentityByEmail looks an identity up by case-folded email.
func (s *Store) FindIdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return cloneIdentity(s.identities[id]), nil
}

// CreateIdentity stores id, assigning its ID and timestamps when unset.
func (s *Store) CreateIdentity(_ context.Context, id *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(id.Email)
	if _, dup := s.byEmail[key]; dup {
		return fmt.Errorf("%w: email %s", auth.ErrConflict, key)
	}
	if id.CompanyID != nil {
		if _, ok := s.companies[*id.CompanyID]; !ok {
			return fmt.Errorf("%w: company %s", auth.ErrConflict, *id.CompanyID)
		}
	}
	stamp(&id.ID, &id.CreatedAt, &id.UpdatedAt)
	s.identities[id.ID] = cloneIdentity(*id)
	s.byEmail[key] = id.ID
	return nil
}

// UpdateIdentity replaces a stored identity. Emails stay unique.
func (s *Store) UpdateIdentity(_ context.Context, id *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.identities[id.ID]
	if !ok {
		return auth.ErrNotFound
	}
	key := strings.ToLower(id.Email)
	if owner, dup := s.byEmail[key]; dup && owner != id.ID {
		return fmt.Errorf("%w: email %s", auth.ErrConflict, key)
	}
	delete(s.byEmail, strings.ToLower(prev.Email))
	s.byEmail[key] = id.ID
	s.identities[id.ID] = cloneIdentity(*id)
	return nil
}

// ListIdentitiesByCompany returns the members of companyID ordered by ID.
func (s *Store) ListIdentitiesByCompany(_ context.Context, companyID string) ([]auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []auth.Identity{}
	for _, v := range s.identities {
		if c, ok := v.Company(); ok && c == companyID {
			out = append(out, cloneIdentity(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateRefreshToken stores a hashed refresh token for an existing identity.
func (s *Store) CreateRefreshToken(_ context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[tok.IdentityID]; !ok {
		return fmt.Errorf("%w: identity %s", auth.ErrConflict, tok.IdentityID)
	}
	for _, existing := range s.refresh {
		if existing.TokenHash == tok.TokenHash {
			return fmt.Errorf("%w: refresh token", auth.ErrConflict)
		}
	}
	var updated time.Time
	stamp(&tok.ID, &tok.CreatedAt, &updated)
	s.refresh[tok.ID] = *tok
	return nil
}

// RefreshTokens returns the tokens stored for identityID.
func (s *Store) RefreshTokens(identityID string) []auth.RefreshToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.RefreshToken
	for _, t := range s.refresh {
		if t.IdentityID == identityID {
			out = append(out, t)
		}
	}
	return out
}

// FindCompanyByID returns the company with id or auth.ErrNotFound.
func (s *Store) FindCompanyByID(_ context.Context, id string) (auth.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return auth.Company{}, auth.ErrNotFound
	}
	return c, nil
}

// CreateCompany stores c. Company names are unique.
func (s *Store) CreateCompany(_ context.Context, c *auth.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies {
		if existing.Name == c.Name {
			return fmt.Errorf("%w: company name %s", auth.ErrConflict, c.Name)
		}
	}
	stamp(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	s.companies[c.ID] = *c
	return nil
}

// ListCompanies returns every company ordered by ID.
func (s *Store) ListCompanies(context.Context) ([]auth.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCompany replaces a stored company.
func (s *Store) UpdateCompany(_ context.Context, c *auth.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range s.companies {
		if id != c.ID && existing.Name == c.Name {
			return fmt.Errorf("%w: company name %s", auth.ErrConflict, c.Name)
		}
	}
	s.companies[c.ID] = *c
	return nil
}

// DeleteCompany removes a company that has no members.
func (s *Store) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return auth.ErrNotFound
	}
	for _, v := range s.identities {
		if c, ok := v.Company(); ok && c == id {
			return fmt.Errorf("%w: company %s has members", auth.ErrConflict, id)
		}
	}
	delete(s.companies, id)
	return nil
}

// CreateLead stores l for an existing owner.
func (s *Store) CreateLead(_ context.Context, l *lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[l.OwnerID]; !ok {
		return fmt.Errorf("%w: owner %s", auth.ErrConflict, l.OwnerID)
	}
	stamp(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	s.leads[l.ID] = *l
	return nil
}

// FindLead returns a live lead. Deleted leads read as not found.
func (s *Store) FindLead(_ context.Context, id string) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok || l.DeletedAt != nil {
		return lead.Lead{}, auth.ErrNotFound
	}
	return l, nil
}

// ListLeads returns live leads matching f ordered by ID.
func (s *Store) ListLeads(_ context.Context, f lead.Filter) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []lead.Lead{}
	for _, l := range s.leads {
		if l.DeletedAt != nil {
			continue
		}
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListHistory returns a copy of the status history of leadID, oldest first.
func (s *Store) ListHistory(_ context.Context, leadID string) ([]lead.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]lead.History{}, s.history[leadID]...), nil
}

// Transition holds the write lock for the whole read-modify-write, so
// concurrent transitions of a lead are serialized.
func (s *Store) Transition(_ context.Context, id string, fn lead.MutateFunc) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[id]
	if !ok || current.DeletedAt != nil {
		return lead.Lead{}, auth.ErrNotFound
	}
	next, entry, err := fn(current)
	if err != nil {
		return lead.Lead{}, err
	}
	if _, ok := s.identities[next.OwnerID]; !ok {
		return lead.Lead{}, fmt.Errorf("%w: owner %s", auth.ErrConflict, next.OwnerID)
	}
	next.ID = current.ID
	if entry != nil {
		var updated time.Time
		stamp(&entry.ID, &entry.CreatedAt, &updated)
		entry.LeadID = current.ID
		s.history[id] = append(s.history[id], *entry)
	}
	s.leads[id] = next
	return next, nil
}

// DeleteLead marks a lead deleted at at; its history is kept.
func (s *Store) DeleteLead(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.DeletedAt != nil {
		return auth.ErrNotFound
	}
	l.DeletedAt = &at
	s.leads[id] = l
	return nil
}

func stamp(id *string, created, updated *time.Time) {
	now := time.Now().UTC()
	if *id == "" {
		*id = ids.NewAt(now)
	}
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}
