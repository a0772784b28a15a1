package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users         *UserStore
	organizations *OrganizationStore
	requests      *RequestStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users:         &UserStore{data: make(map[domain.UserID]*domain.User)},
		organizations: &OrganizationStore{data: make(map[domain.UserID]*domain.Organization)},
		requests:      &RequestStore{data: make(map[domain.RequestID]*domain.CertificateRequest)},
	}
}

func (s *Store) Users() storage.UserStore                 { return s.users }
func (s *Store) Organizations() storage.OrganizationStore { return s.organizations }
func (s *Store) Requests() storage.RequestStore           { return s.requests }
func (s *Store) Close() error                             { return nil }
func (s *Store) Ping(ctx context.Context) error           { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data map[domain.UserID]*domain.User
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID]; exists {
		return storage.ErrAlreadyExists
	}
	for _, u := range s.data {
		if u.WalletAddress == user.WalletAddress {
			return storage.ErrAlreadyExists
		}
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	s.data[user.ID] = &stored
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *UserStore) GetByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.WalletAddress == wallet {
			u := *user
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) GetByIDs(ctx context.Context, ids []domain.UserID) (map[domain.UserID]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[domain.UserID]*domain.User, len(ids))
	for _, id := range ids {
		if user, ok := s.data[id]; ok {
			u := *user
			users[id] = &u
		}
	}
	return users, nil
}

func (s *UserStore) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*domain.User, 0)
	for _, user := range s.data {
		if user.Role == role {
			u := *user
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *UserStore) SetBlockchainRegistered(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	user.IsBlockchainRegistered = true
	user.UpdatedAt = time.Now()
	u := *user
	return &u, nil
}

func (s *UserStore) Delete(ctx context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// OrganizationStore implements in-memory organization profile storage
type OrganizationStore struct {
	mu   sync.RWMutex
	data map[domain.UserID]*domain.Organization
}

func (s *OrganizationStore) Create(ctx context.Context, org *domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[org.UserID]; exists {
		return storage.ErrAlreadyExists
	}
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt
	stored := *org
	s.data[org.UserID] = &stored
	return nil
}

func (s *OrganizationStore) GetByUserID(ctx context.Context, userID domain.UserID) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.data[userID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	o := *org
	return &o, nil
}

// RequestStore implements in-memory certificate request storage.
// The single mutex makes every conditional update atomic.
type RequestStore struct {
	mu   sync.RWMutex
	data map[domain.RequestID]*domain.CertificateRequest
}

func (s *RequestStore) Create(ctx context.Context, req *domain.CertificateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[req.ID]; exists {
		return storage.ErrAlreadyExists
	}
	if req.Status == domain.StatusPending {
		for _, r := range s.data {
			if r.Status == domain.StatusPending && r.Student == req.Student && r.Organization == req.Organization {
				return storage.ErrAlreadyExists
			}
		}
	}

	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	s.data[req.ID] = req.Clone()
	return nil
}

func (s *RequestStore) GetByID(ctx context.Context, id domain.RequestID) (*domain.CertificateRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return req.Clone(), nil
}

func matches(r *domain.CertificateRequest, f storage.RequestFilter) bool {
	if f.Student != "" && r.Student != f.Student {
		return false
	}
	if f.Organization != "" && r.Organization != f.Organization {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Unanchored && r.LedgerTxHash != nil {
		return false
	}
	return true
}

func (s *RequestStore) List(ctx context.Context, filter storage.RequestFilter) ([]*domain.CertificateRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]*domain.CertificateRequest, 0)
	for _, r := range s.data {
		if matches(r, filter) {
			requests = append(requests, r.Clone())
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	return requests, nil
}

func (s *RequestStore) UpdateStatus(ctx context.Context, id domain.RequestID, organization domain.UserID, from, to domain.RequestStatus, remarks string) (*domain.CertificateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.data[id]
	if !exists || req.Organization != organization {
		return nil, storage.ErrNotFound
	}
	if req.Status != from {
		return nil, storage.ErrConflict
	}

	req.Status = to
	if remarks != "" {
		req.Remarks = remarks
	}
	req.UpdatedAt = time.Now()
	return req.Clone(), nil
}

func (s *RequestStore) MarkIssued(ctx context.Context, id domain.RequestID, contentID string, issuedAt time.Time) (*domain.CertificateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if req.Status != domain.StatusAccepted || req.IPFSHash != nil {
		return nil, storage.ErrConflict
	}

	cid := contentID
	at := issuedAt
	req.Status = domain.StatusIssued
	req.IPFSHash = &cid
	req.IssuedAt = &at
	req.UpdatedAt = time.Now()
	return req.Clone(), nil
}

func (s *RequestStore) SetVerificationCharge(ctx context.Context, id domain.RequestID, organization domain.UserID, charge domain.Amount) (*domain.CertificateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.data[id]
	if !exists || req.Organization != organization {
		return nil, storage.ErrNotFound
	}
	if req.Status != domain.StatusPending && req.Status != domain.StatusAccepted {
		return nil, storage.ErrConflict
	}

	req.VerificationCharge = charge
	req.UpdatedAt = time.Now()
	return req.Clone(), nil
}

func (s *RequestStore) RecordLedgerCommit(ctx context.Context, id domain.RequestID, organization domain.UserID, txHash string, committedAt time.Time) (*domain.CertificateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.data[id]
	if !exists || req.Organization != organization {
		return nil, storage.ErrNotFound
	}
	if req.Status != domain.StatusIssued || req.LedgerTxHash != nil {
		return nil, storage.ErrConflict
	}

	hash := txHash
	at := committedAt
	req.LedgerTxHash = &hash
	req.LedgerCommittedAt = &at
	req.UpdatedAt = time.Now()
	return req.Clone(), nil
}
