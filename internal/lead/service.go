package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog"

	"leadtrack.io/internal/audit"
	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/ids"
	"leadtrack.io/internal/obs"
)

// Service applies lead operations on behalf of an authenticated identity.
// SALES_EXECUTIVE callers only see and change leads they own.
type Service struct {
	store       Store
	guard       *auth.Guard
	now         func() time.Time
	log         zerolog.Logger
	phoneRegion string
	events      Publisher
}

// Publisher receives committed status changes.
type Publisher interface {
	Publish(StatusChange)
}

// Option configures Service.
type Option func(*Service)

// WithEvents publishes every committed status change to p.
func WithEvents(p Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger sets the logger used for operational messages.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithPhoneRegion sets the region assumed for numbers without a country code.
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		if region = strings.ToUpper(strings.TrimSpace(region)); region != "" {
			s.phoneRegion = region
		}
	}
}

// NewService wires a lead service over store; guard decides owner assignment.
func NewService(store Store, guard *auth.Guard, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lead: store is required")
	}
	if guard == nil {
		return nil, errors.New("lead: guard is required")
	}
	s := &Service{
		store:       store,
		guard:       guard,
		now:         time.Now,
		log:         obs.Logger(),
		phoneRegion: DefaultPhoneRegion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new lead. The owner defaults to the caller; assigning it to
// someone else goes through the assignment policy.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (Lead, error) {
	if actor.IsZero() {
		return Lead{}, auth.ErrUnauthenticated
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&in.Email, is.Email),
	)
	if err != nil {
		return Lead{}, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
	}
	if err := s.guard.AuthorizeAssignment(ctx, actor, in.OwnerID); err != nil {
		return Lead{}, err
	}
	owner := in.OwnerID
	if owner == "" {
		owner = actor.ID
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = StatusNew
	}
	now := s.now().UTC()
	l := Lead{
		ID:            ids.NewAt(now),
		Title:         in.Title,
		Email:         in.Email,
		Phone:         normalizePhone(in.Phone, s.phoneRegion),
		Status:        status,
		OwnerID:       owner,
		Customer:      strings.TrimSpace(in.Customer),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		ContactNumber: normalizePhone(in.ContactNumber, s.phoneRegion),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateLead(ctx, &l); err != nil {
		return Lead{}, err
	}
	_ = audit.LogEvent(ctx, "lead.created", map[string]any{"lead_id": l.ID, "owner_id": l.OwnerID})
	return l, nil
}

// List returns the leads visible to actor.
func (s *Service) List(ctx context.Context, actor auth.Identity) ([]Lead, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	var f Filter
	if actor.Role == auth.RoleSalesExecutive {
		f.OwnerID = actor.ID
	}
	return s.store.ListLeads(ctx, f)
}

// Get returns a lead with its history.
func (s *Service) Get(ctx context.Context, actor auth.Identity, id string) (Detail, error) {
	if actor.IsZero() {
		return Detail{}, auth.ErrUnauthenticated
	}
	id, err := leadID(id)
	if err != nil {
		return Detail{}, err
	}
	l, err := s.store.FindLead(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if err := visible(actor, l); err != nil {
		return Detail{}, err
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Lead: l, History: history}, nil
}

// UpdateWithAudit applies ch to the lead and, when the status changes,
// appends a history entry attributed to actor in the same transaction. A
// failed history write rolls the update back and is returned.
func (s *Service) UpdateWithAudit(ctx context.Context, id string, ch Changes, actor auth.Identity) (Lead, error) {
	if actor.IsZero() {
		return Lead{}, auth.ErrUnauthenticated
	}
	id, err := leadID(id)
	if err != nil {
		return Lead{}, err
	}
	if err := s.normalize(&ch); err != nil {
		return Lead{}, err
	}
	if ch.OwnerID != nil {
		if err := s.guard.AuthorizeAssignment(ctx, actor, *ch.OwnerID); err != nil {
			return Lead{}, err
		}
	}

	var entry *History
	updated, err := s.store.Transition(ctx, id, func(current Lead) (Lead, *History, error) {
		if err := visible(actor, current); err != nil {
			return Lead{}, nil, err
		}
		next, h := Apply(current, ch, actor, s.now().UTC())
		if h != nil {
			h.ID = ids.NewAt(h.CreatedAt)
		}
		entry = h
		return next, h, nil
	})
	if err != nil {
		if auth.KindOf(err) == auth.KindUnavailable || auth.KindOf(err) == auth.KindInternal {
			s.log.Error().Err(err).Str("lead_id", id).Msg("lead update failed")
		}
		return Lead{}, err
	}
	if entry != nil {
		obs.RecordLeadTransition()
		_ = audit.LogEvent(ctx, "lead.status.changed", map[string]any{
			"lead_id":    updated.ID,
			"history_id": entry.ID,
			"old_status": entry.OldStatus,
			"new_status": entry.NewStatus,
		})
		if s.events != nil {
			s.events.Publish(StatusChange{
				LeadID:      updated.ID,
				OwnerID:     updated.OwnerID,
				OldStatus:   entry.OldStatus,
				NewStatus:   entry.NewStatus,
				ChangedByID: entry.ChangedByID,
				At:          entry.CreatedAt,
			})
		}
	}
	return updated, nil
}

// Delete hides a lead. ADMIN or MANAGER only; history rows are kept.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) error {
	if err := auth.Authorize(actor, auth.RoleAdmin, auth.RoleManager); err != nil {
		return err
	}
	id, err := leadID(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLead(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "lead.deleted", map[string]any{"lead_id": id})
	return nil
}

func (s *Service) normalize(ch *Changes) error {
	if ch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*ch.Email))
		if err := validation.Validate(email, is.Email); err != nil {
			return fmt.Errorf("%w: email: %v", auth.ErrInvalidInput, err)
		}
		ch.Email = &email
	}
	if ch.Title != nil {
		title := strings.TrimSpace(*ch.Title)
		if title == "" {
			return fmt.Errorf("%w: title must not be blank", auth.ErrInvalidInput)
		}
		ch.Title = &title
	}
	if ch.OwnerID != nil {
		owner := strings.TrimSpace(*ch.OwnerID)
		ch.OwnerID = &owner
	}
	ch.Phone = normalizePhonePtr(ch.Phone, s.phoneRegion)
	ch.ContactNumber = normalizePhonePtr(ch.ContactNumber, s.phoneRegion)
	ch.Notes = strings.TrimSpace(ch.Notes)
	ch.MeetingDetails = strings.TrimSpace(ch.MeetingDetails)
	return nil
}

func visible(actor auth.Identity, l Lead) error {
	if actor.Role == auth.RoleSalesExecutive && l.OwnerID != actor.ID {
		return fmt.Errorf("%w: lead belongs to another identity", auth.ErrForbidden)
	}
	return nil
}

func leadID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !ids.Valid(raw) {
		return "", fmt.Errorf("%w: invalid lead id", auth.ErrInvalidInput)
	}
	return raw, nil
}
