package pg

import (
	"context"
	"database/sql"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/ids"
)

const identityColumns = `id, email, password_hash, name, role, company_id, created_at, updated_at`

func scanIdentity(row scanner) (auth.Identity, error) {
	var (
		id      auth.Identity
		role    string
		company sql.NullString
	)
	if err := row.Scan(&id.ID, &id.Email, &id.PasswordHash, &id.Name, &role, &company, &id.CreatedAt, &id.UpdatedAt); err != nil {
		return auth.Identity{}, err
	}
	id.Role = auth.Role(role)
	id.CompanyID = stringPtr(company)
	return id, nil
}

func (s *Store) FindIdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, classify(err)
	}
	return identity, nil
}

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where lower(email) = lower($1)`, email)
	identity, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, classify(err)
	}
	return identity, nil
}

func (s *Store) CreateIdentity(ctx context.Context, id *auth.Identity) error {
	if id.ID == "" {
		id.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into identities (id, email, password_hash, name, role, company_id)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, id.ID, id.Email, id.PasswordHash, id.Name, string(id.Role), nullString(id.CompanyID)).Scan(&id.CreatedAt, &id.UpdatedAt)
	return classify(err)
}

func (s *Store) UpdateIdentity(ctx context.Context, id *auth.Identity) error {
	err := s.db.QueryRowContext(ctx, `
		update identities
		set email = $2, name = $3, role = $4, company_id = $5, updated_at = now()
		where id = $1
		returning updated_at
	`, id.ID, id.Email, id.Name, string(id.Role), nullString(id.CompanyID)).Scan(&id.UpdatedAt)
	return classify(err)
}

func (s *Store) ListIdentitiesByCompany(ctx context.Context, companyID string) ([]auth.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+identityColumns+`
		from identities
		where company_id = $1
		order by id
	`, companyID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := []auth.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, identity_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, tok.ID, tok.IdentityID, tok.TokenHash, tok.ExpiresAt).Scan(&tok.CreatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}
