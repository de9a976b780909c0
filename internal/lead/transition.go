package lead

import (
	"strings"
	"time"

	"leadtrack.io/internal/auth"
)

// Apply merges ch into current. It returns a History entry exactly when ch
// names a status different from the current one; omitting the status or
// repeating it never produces history.
func Apply(current Lead, ch Changes, actor auth.Identity, now time.Time) (Lead, *History) {
	next := current
	assign(&next.Title, ch.Title)
	assign(&next.Email, ch.Email)
	assign(&next.Phone, ch.Phone)
	assign(&next.Customer, ch.Customer)
	assign(&next.ContactPerson, ch.ContactPerson)
	assign(&next.ContactNumber, ch.ContactNumber)
	if ch.OwnerID != nil && *ch.OwnerID != "" {
		next.OwnerID = *ch.OwnerID
	}
	next.UpdatedAt = now

	if ch.Status == nil {
		return next, nil
	}
	status := strings.TrimSpace(*ch.Status)
	if status == "" || status == current.Status {
		return next, nil
	}
	next.Status = status
	return next, &History{
		LeadID:         current.ID,
		ChangedByID:    actor.ID,
		OldStatus:      current.Status,
		NewStatus:      status,
		Notes:          ch.Notes,
		MeetingDetails: ch.MeetingDetails,
		CreatedAt:      now,
	}
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
