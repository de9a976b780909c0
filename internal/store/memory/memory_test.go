package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/lead"
)

func seedIdentity(t *testing.T, s *Store, email string) auth.Identity {
	t.Helper()
	id := auth.Identity{Email: email, Role: auth.RoleAdmin}
	if err := s.CreateIdentity(context.Background(), &id); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return id
}

func TestCreateIdentityRejectsDuplicateEmail(t *testing.T) {
	s := New()
	seedIdentity(t, s, "alice@x.io")
	dup := auth.Identity{Email: "ALICE@x.io"}
	err := s.CreateIdentity(context.Background(), &dup)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	members, _ := s.ListIdentitiesByCompany(context.Background(), "none")
	if len(members) != 0 {
		t.Fatalf("unexpected members %v", members)
	}
}

func TestUpdateIdentityEmailIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedIdentity(t, s, "a@x.io")
	seedIdentity(t, s, "b@x.io")

	a.Email = "b@x.io"
	if err := s.UpdateIdentity(ctx, &a); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	a.Email = "c@x.io"
	if err := s.UpdateIdentity(ctx, &a); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.FindIdentityByEmail(ctx, "a@x.io"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("old email still indexed: %v", err)
	}
	if got, err := s.FindIdentityByEmail(ctx, "c@x.io"); err != nil || got.ID != a.ID {
		t.Fatalf("new email lookup = %v, %v", got, err)
	}
}

func TestDeleteCompanyWithMembersConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := auth.Company{Name: "Acme"}
	if err := s.CreateCompany(ctx, &c); err != nil {
		t.Fatalf("create company: %v", err)
	}
	id := auth.Identity{Email: "m@x.io", CompanyID: &c.ID}
	if err := s.CreateIdentity(ctx, &id); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if err := s.DeleteCompany(ctx, c.ID); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestTransitionLeavesStateOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := seedIdentity(t, s, "o@x.io")
	l := lead.Lead{Title: "Deal", Status: "NEW", OwnerID: owner.ID}
	if err := s.CreateLead(ctx, &l); err != nil {
		t.Fatalf("create lead: %v", err)
	}
	boom := errors.New("boom")
	_, err := s.Transition(ctx, l.ID, func(cur lead.Lead) (lead.Lead, *lead.History, error) {
		return lead.Lead{}, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.FindLead(ctx, l.ID)
	if got.Status != "NEW" {
		t.Fatalf("status changed on failed transition: %q", got.Status)
	}

	_, err = s.Transition(ctx, l.ID, func(cur lead.Lead) (lead.Lead, *lead.History, error) {
		cur.Status = "WON"
		return cur, &lead.History{ChangedByID: owner.ID, OldStatus: "NEW", NewStatus: "WON"}, nil
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	hist, _ := s.ListHistory(ctx, l.ID)
	if len(hist) != 1 || hist[0].LeadID != l.ID || hist[0].ID == "" {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestDeleteLeadHidesButKeepsHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := seedIdentity(t, s, "o@x.io")
	l := lead.Lead{Title: "Deal", Status: "NEW", OwnerID: owner.ID}
	_ = s.CreateLead(ctx, &l)
	_, _ = s.Transition(ctx, l.ID, func(cur lead.Lead) (lead.Lead, *lead.History, error) {
		cur.Status = "LOST"
		return cur, &lead.History{OldStatus: "NEW", NewStatus: "LOST"}, nil
	})
	if err := s.DeleteLead(ctx, l.ID, time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindLead(ctx, l.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("deleted lead still visible: %v", err)
	}
	if err := s.DeleteLead(ctx, l.ID, time.Now()); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	leads, _ := s.ListLeads(ctx, lead.Filter{})
	if len(leads) != 0 {
		t.Fatalf("deleted lead listed")
	}
	hist, _ := s.ListHistory(ctx, l.ID)
	if len(hist) != 1 {
		t.Fatalf("history lost on delete")
	}
}

func TestConcurrentTransitionsFormChain(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := seedIdentity(t, s, "o@x.io")
	l := lead.Lead{Title: "Deal", Status: "NEW", OwnerID: owner.ID}
	if err := s.CreateLead(ctx, &l); err != nil {
		t.Fatalf("create lead: %v", err)
	}

	const workers = 32
	statuses := []string{"CONTACTED", "QUALIFIED", "NEW"}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(want string) {
			defer wg.Done()
			_, err := s.Transition(ctx, l.ID, func(cur lead.Lead) (lead.Lead, *lead.History, error) {
				next, entry := lead.Apply(cur, lead.Changes{Status: &want}, owner, time.Now())
				if entry != nil {
					mu.Lock()
					applied++
					mu.Unlock()
				}
				return next, entry, nil
			})
			if err != nil {
				t.Errorf("transition: %v", err)
			}
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	hist, _ := s.ListHistory(ctx, l.ID)
	if len(hist) != applied {
		t.Fatalf("history = %d, applied = %d", len(hist), applied)
	}
	prev := "NEW"
	for i, h := range hist {
		if h.OldStatus != prev || h.NewStatus == h.OldStatus {
			t.Fatalf("history[%d] = %s -> %s, previous status %s", i, h.OldStatus, h.NewStatus, prev)
		}
		prev = h.NewStatus
	}
	got, _ := s.FindLead(ctx, l.ID)
	if got.Status != prev {
		t.Fatalf("lead status %s, last history entry %s", got.Status, prev)
	}
}
