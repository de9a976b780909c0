package pg

import (
	"context"
	"fmt"
	"time"

	"leadtrack.io/internal/ids"
	"leadtrack.io/internal/lead"
)

const leadColumns = `id, title, email, phone, status, owner_id, customer, contact_person, contact_number, created_at, updated_at`

func scanLead(row scanner) (lead.Lead, error) {
	var l lead.Lead
	err := row.Scan(&l.ID, &l.Title, &l.Email, &l.Phone, &l.Status, &l.OwnerID,
		&l.Customer, &l.ContactPerson, &l.ContactNumber, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *Store) CreateLead(ctx context.Context, l *lead.Lead) error {
	if l.ID == "" {
		l.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into leads (id, title, email, phone, status, owner_id, customer, contact_person, contact_number)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, l.ID, l.Title, l.Email, l.Phone, l.Status, l.OwnerID, l.Customer, l.ContactPerson, l.ContactNumber).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	return classify(err)
}

func (s *Store) FindLead(ctx context.Context, id string) (lead.Lead, error) {
	row := s.db.QueryRowContext(ctx, `select `+leadColumns+` from leads where id = $1 and deleted_at is null`, id)
	l, err := scanLead(row)
	if err != nil {
		return lead.Lead{}, classify(err)
	}
	return l, nil
}

func (s *Store) ListLeads(ctx context.Context, f lead.Filter) ([]lead.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+leadColumns+`
		from leads
		where deleted_at is null and ($1 = '' or owner_id = $1)
		order by created_at desc, id desc
	`, f.OwnerID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := []lead.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) ListHistory(ctx context.Context, leadID string) ([]lead.History, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, lead_id, changed_by_id, old_status, new_status, notes, meeting_details, created_at
		from lead_history
		where lead_id = $1
		order by created_at, id
	`, leadID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := []lead.History{}
	for rows.Next() {
		var h lead.History
		if err := rows.Scan(&h.ID, &h.LeadID, &h.ChangedByID, &h.OldStatus, &h.NewStatus, &h.Notes, &h.MeetingDetails, &h.CreatedAt); err != nil {
			return nil, classify(err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// Transition locks the lead row, applies fn and writes the lead together with
// the history entry fn returns. Concurrent transitions of one lead queue on
// the row lock.
func (s *Store) Transition(ctx context.Context, id string, fn lead.MutateFunc) (lead.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lead.Lead{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanLead(tx.QueryRowContext(ctx,
		`select `+leadColumns+` from leads where id = $1 and deleted_at is null for update`, id))
	if err != nil {
		return lead.Lead{}, classify(err)
	}
	next, entry, err := fn(current)
	if err != nil {
		return lead.Lead{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update leads
		set title = $2, email = $3, phone = $4, status = $5, owner_id = $6,
		    customer = $7, contact_person = $8, contact_number = $9, updated_at = $10
		where id = $1
	`, current.ID, next.Title, next.Email, next.Phone, next.Status, next.OwnerID,
		next.Customer, next.ContactPerson, next.ContactNumber, next.UpdatedAt); err != nil {
		return lead.Lead{}, fmt.Errorf("update lead: %w", classify(err))
	}
	if entry != nil {
		if entry.ID == "" {
			entry.ID = ids.New()
		}
		entry.LeadID = current.ID
		if _, err := tx.ExecContext(ctx, `
			insert into lead_history (id, lead_id, changed_by_id, old_status, new_status, notes, meeting_details, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.ID, entry.LeadID, entry.ChangedByID, entry.OldStatus, entry.NewStatus,
			entry.Notes, entry.MeetingDetails, entry.CreatedAt); err != nil {
			return lead.Lead{}, fmt.Errorf("append lead history: %w", classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return lead.Lead{}, classify(err)
	}
	next.ID = current.ID
	return next, nil
}

func (s *Store) DeleteLead(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update leads set deleted_at = $2 where id = $1 and deleted_at is null`, id, at)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

