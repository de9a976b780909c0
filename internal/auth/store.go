package auth

import "context"

// IdentityFinder resolves identities by id.
type IdentityFinder interface {
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// Store is the persistence capability used by Service. Implementations
// return ErrNotFound for missing rows, ErrConflict for uniqueness
// violations and ErrUnavailable when the backend cannot be reached.
type Store interface {
	IdentityFinder
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	// CreateIdentity assigns ID and timestamps when they are empty.
	CreateIdentity(ctx context.Context, id *Identity) error
	UpdateIdentity(ctx context.Context, id *Identity) error
	ListIdentitiesByCompany(ctx context.Context, companyID string) ([]Identity, error)
	FindCompanyByID(ctx context.Context, id string) (Company, error)
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
}

// CompanyStore persists companies.
type CompanyStore interface {
	FindCompanyByID(ctx context.Context, id string) (Company, error)
	CreateCompany(ctx context.Context, c *Company) error
	ListCompanies(ctx context.Context) ([]Company, error)
	UpdateCompany(ctx context.Context, c *Company) error
	// DeleteCompany fails with ErrConflict while identities still reference the company.
	DeleteCompany(ctx context.Context, id string) error
}

// DirectoryStore is the combined capability needed by Directory.
type DirectoryStore interface {
	Store
	CompanyStore
}
