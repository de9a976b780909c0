package lead

import (
	"testing"
	"time"

	"leadtrack.io/internal/auth"
)

func str(s string) *string { return &s }

func TestApplyWithoutStatusProducesNoHistory(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	cur := Lead{ID: "L1", Title: "Old", Status: "NEW", OwnerID: "o"}
	actor := auth.Identity{ID: "a"}

	next, h := Apply(cur, Changes{Title: str("New title")}, actor, now)
	if h != nil {
		t.Fatalf("unexpected history %+v", h)
	}
	if next.Title != "New title" || next.Status != "NEW" || !next.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected lead %+v", next)
	}
	if cur.Title != "Old" {
		t.Fatal("current must not be mutated")
	}
}

func TestApplySameStatusProducesNoHistory(t *testing.T) {
	cur := Lead{ID: "L1", Status: "NEW"}
	for _, s := range []string{"NEW", " NEW ", ""} {
		next, h := Apply(cur, Changes{Status: str(s), Notes: "call back"}, auth.Identity{ID: "a"}, time.Now())
		if h != nil {
			t.Fatalf("status %q: unexpected history", s)
		}
		if next.Status != "NEW" {
			t.Fatalf("status %q: lead status = %q", s, next.Status)
		}
	}
}

func TestApplyStatusChangeProducesOneHistory(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	cur := Lead{ID: "L1", Status: "NEW"}
	actor := auth.Identity{ID: "u9"}

	next, h := Apply(cur, Changes{Status: str("CONTACTED"), Notes: "n", MeetingDetails: "m"}, actor, now)
	if h == nil {
		t.Fatal("expected history entry")
	}
	want := History{
		LeadID:         "L1",
		ChangedByID:    "u9",
		OldStatus:      "NEW",
		NewStatus:      "CONTACTED",
		Notes:          "n",
		MeetingDetails: "m",
		CreatedAt:      now,
	}
	if *h != want {
		t.Fatalf("history = %+v, want %+v", *h, want)
	}
	if next.Status != "CONTACTED" {
		t.Fatalf("status = %q", next.Status)
	}
}

func TestApplyOwnerChange(t *testing.T) {
	cur := Lead{ID: "L1", Status: "NEW", OwnerID: "o1"}
	next, _ := Apply(cur, Changes{OwnerID: str("o2")}, auth.Identity{ID: "a"}, time.Now())
	if next.OwnerID != "o2" {
		t.Fatalf("owner = %q", next.OwnerID)
	}
	next, _ = Apply(cur, Changes{OwnerID: str("")}, auth.Identity{ID: "a"}, time.Now())
	if next.OwnerID != "o1" {
		t.Fatalf("blank owner must not clear ownership, got %q", next.OwnerID)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"(650) 253-0000", "+16502530000"},
		{"+1 650 253 0000", "+16502530000"},
		{"ext. 12", "ext. 12"},
	}
	for _, tc := range cases {
		if got := normalizePhone(tc.in, "US"); got != tc.want {
			t.Fatalf("normalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
