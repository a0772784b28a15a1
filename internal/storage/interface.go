package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pawanM12/deCertify/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("precondition failed")
	ErrDatabase      = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user. Returns ErrAlreadyExists if the wallet address is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetByWallet retrieves a user by lower-case wallet address
	GetByWallet(ctx context.Context, wallet string) (*domain.User, error)

	// GetByIDs retrieves the users with the given IDs; unknown IDs are skipped
	GetByIDs(ctx context.Context, ids []domain.UserID) (map[domain.UserID]*domain.User, error)

	// ListByRole retrieves all users with the given role
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)

	// SetBlockchainRegistered flags the user as registered on the ledger
	SetBlockchainRegistered(ctx context.Context, id domain.UserID) (*domain.User, error)

	// Delete deletes a user
	Delete(ctx context.Context, id domain.UserID) error
}

// OrganizationStore defines the interface for organization profile storage
type OrganizationStore interface {
	// Create creates the profile. Returns ErrAlreadyExists if the user already has one.
	Create(ctx context.Context, org *domain.Organization) error

	// GetByUserID retrieves the profile of an organization user
	GetByUserID(ctx context.Context, userID domain.UserID) (*domain.Organization, error)
}

// RequestFilter narrows a request listing. Zero values match everything.
type RequestFilter struct {
	Student      domain.UserID
	Organization domain.UserID
	Status       domain.RequestStatus
	// Unanchored limits the result to records without a ledger commit
	Unanchored bool
}

// RequestStore defines the interface for certificate request storage.
// All status changes are conditional: they apply only if the stored status
// matches the expected prior state, and report ErrConflict otherwise.
type RequestStore interface {
	// Create stores a new pending request. Returns ErrAlreadyExists if the
	// (student, organization) pair already has a pending request.
	Create(ctx context.Context, req *domain.CertificateRequest) error

	// GetByID retrieves a request by ID
	GetByID(ctx context.Context, id domain.RequestID) (*domain.CertificateRequest, error)

	// List retrieves requests matching the filter, oldest first
	List(ctx context.Context, filter RequestFilter) ([]*domain.CertificateRequest, error)

	// UpdateStatus moves a request owned by organization from one status to another,
	// setting remarks when non-empty. Returns ErrNotFound if no such request is
	// owned by the organization and ErrConflict if the status is not from.
	UpdateStatus(ctx context.Context, id domain.RequestID, organization domain.UserID, from, to domain.RequestStatus, remarks string) (*domain.CertificateRequest, error)

	// MarkIssued moves an accepted request to issued, setting ipfsHash and issuedAt together.
	// Returns ErrConflict if the request is not accepted.
	MarkIssued(ctx context.Context, id domain.RequestID, contentID string, issuedAt time.Time) (*domain.CertificateRequest, error)

	// SetVerificationCharge updates the charge of a pending or accepted request owned by organization
	SetVerificationCharge(ctx context.Context, id domain.RequestID, organization domain.UserID, charge domain.Amount) (*domain.CertificateRequest, error)

	// RecordLedgerCommit sets the ledger fields on an issued request owned by organization.
	// Returns ErrConflict if the request is not issued or already has a commit.
	RecordLedgerCommit(ctx context.Context, id domain.RequestID, organization domain.UserID, txHash string, committedAt time.Time) (*domain.CertificateRequest, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Organizations() OrganizationStore
	Requests() RequestStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
