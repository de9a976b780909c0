package pg

import (
	"context"
	"database/sql"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/ids"
)

func (s *Store) FindCompanyByID(ctx context.Context, id string) (auth.Company, error) {
	var c auth.Company
	err := s.db.QueryRowContext(ctx, `
		select id, name, size, created_at, updated_at
		from companies
		where id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Size, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return auth.Company{}, classify(err)
	}
	return c, nil
}

func (s *Store) CreateCompany(ctx context.Context, c *auth.Company) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into companies (id, name, size)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, c.ID, c.Name, c.Size).Scan(&c.CreatedAt, &c.UpdatedAt)
	return classify(err)
}

func (s *Store) ListCompanies(ctx context.Context) ([]auth.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, size, created_at, updated_at
		from companies
		order by name
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := []auth.Company{}
	for rows.Next() {
		var c auth.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Size, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) UpdateCompany(ctx context.Context, c *auth.Company) error {
	err := s.db.QueryRowContext(ctx, `
		update companies
		set name = $2, size = $3, updated_at = now()
		where id = $1
		returning updated_at
	`, c.ID, c.Name, c.Size).Scan(&c.UpdatedAt)
	return classify(err)
}

// DeleteCompany relies on the identities.company_id foreign key to refuse
// deleting a company that still has members.
func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from companies where id = $1`, id)
	if err != nil {
		return classify(err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
