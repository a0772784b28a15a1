package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/internal/storage"
)

// RequestService owns the certificate request state machine:
// pending -> accepted|rejected, accepted -> issued.
type RequestService struct {
	store   storage.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRequestService creates a new RequestService
func NewRequestService(store storage.Store, m *metrics.Metrics, logger *zap.Logger) *RequestService {
	return &RequestService{
		store:   store,
		metrics: m,
		logger:  logger.Named("request-service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func requireRole(caller domain.Caller, role domain.Role) error {
	if !caller.Is(role) {
		return ErrInvalidRole
	}
	return nil
}

// Create opens a pending request from the calling student to an organization
func (s *RequestService) Create(ctx context.Context, caller domain.Caller, in *domain.CreateRequestInput) (*domain.CertificateRequest, error) {
	if err := requireRole(caller, domain.RoleStudent); err != nil {
		return nil, err
	}

	amount, err := domain.ParseAmount(in.IssuanceAmount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	student, err := s.lookupUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if student.Role != domain.RoleStudent {
		return nil, ErrInvalidRole
	}

	org, err := s.lookupUser(ctx, domain.UserID(in.OrganizationID))
	if err != nil {
		return nil, err
	}
	if org.Role != domain.RoleOrganization {
		return nil, ErrInvalidRole
	}

	req := &domain.CertificateRequest{
		ID:                 domain.NewRequestID(),
		Student:            student.ID,
		Organization:       org.ID,
		Status:             domain.StatusPending,
		IssuanceAmount:     amount,
		VerificationCharge: domain.ZeroAmount,
		CredentialMetadata: domain.CredentialMetadata{
			USN:              in.USN,
			YearOfGraduation: in.YearOfGraduation,
			CertificateType:  in.CertificateType,
		},
	}

	if err := s.store.Requests().Create(ctx, req); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.metrics.RecordTransition(string(domain.StatusPending))
	s.logger.Info("Certificate request created",
		zap.String("request_id", req.ID.String()),
		zap.String("student", student.ID.String()),
		zap.String("organization", org.ID.String()))
	return req, nil
}

func (s *RequestService) lookupUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListForOrganization returns the calling organization's requests with student details
func (s *RequestService) ListForOrganization(ctx context.Context, caller domain.Caller) ([]*domain.RequestView, error) {
	if err := requireRole(caller, domain.RoleOrganization); err != nil {
		return nil, err
	}
	return s.listJoined(ctx, storage.RequestFilter{Organization: caller.UserID})
}

// ListForStudent returns the calling student's requests with organization details
func (s *RequestService) ListForStudent(ctx context.Context, caller domain.Caller) ([]*domain.RequestView, error) {
	if err := requireRole(caller, domain.RoleStudent); err != nil {
		return nil, err
	}
	return s.listJoined(ctx, storage.RequestFilter{Student: caller.UserID})
}

// ListIssued returns the calling student's issued certificates
func (s *RequestService) ListIssued(ctx context.Context, caller domain.Caller) ([]*domain.RequestView, error) {
	if err := requireRole(caller, domain.RoleStudent); err != nil {
		return nil, err
	}
	views, err := s.listJoined(ctx, storage.RequestFilter{Student: caller.UserID, Status: domain.StatusIssued})
	if err != nil {
		return nil, err
	}

	issued := views[:0]
	for _, v := range views {
		if v.IPFSHash != nil {
			issued = append(issued, v)
		}
	}
	return issued, nil
}

func (s *RequestService) listJoined(ctx context.Context, filter storage.RequestFilter) ([]*domain.RequestView, error) {
	requests, err := s.store.Requests().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return s.join(ctx, requests, filter.Organization == "", filter.Student == "")
}

// join attaches counterparty summaries. Unknown users are left out rather than failing the listing.
func (s *RequestService) join(ctx context.Context, requests []*domain.CertificateRequest, withOrganization, withStudent bool) ([]*domain.RequestView, error) {
	seen := make(map[domain.UserID]struct{})
	var ids []domain.UserID
	add := func(id domain.UserID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, r := range requests {
		if withStudent {
			add(r.Student)
		}
		if withOrganization {
			add(r.Organization)
		}
	}

	users, err := s.store.Users().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	views := make([]*domain.RequestView, 0, len(requests))
	for _, r := range requests {
		v := &domain.RequestView{CertificateRequest: r}
		if u, ok := users[r.Student]; ok && withStudent {
			v.StudentDetails = u.Summary()
		}
		if u, ok := users[r.Organization]; ok && withOrganization {
			v.OrganizationDetails = u.Summary()
		}
		views = append(views, v)
	}
	return views, nil
}

// SetStatus accepts or rejects a pending request owned by the calling organization
func (s *RequestService) SetStatus(ctx context.Context, caller domain.Caller, id domain.RequestID, in *domain.UpdateStatusInput) (*domain.CertificateRequest, error) {
	if err := requireRole(caller, domain.RoleOrganization); err != nil {
		return nil, err
	}
	if in.Status != domain.StatusAccepted && in.Status != domain.StatusRejected {
		return nil, ErrInvalidTransition
	}

	req, err := s.store.Requests().UpdateStatus(ctx, id, caller.UserID, domain.StatusPending, in.Status, in.Remarks)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrInvalidTransition
		default:
			return nil, fmt.Errorf("failed to update request: %w", err)
		}
	}

	s.metrics.RecordTransition(string(in.Status))
	s.logger.Info("Certificate request updated",
		zap.String("request_id", id.String()),
		zap.String("status", string(in.Status)))
	return req, nil
}

// markIssued moves an accepted request to issued. A repeat with the content
// identifier already stored is a no-op that returns the record unchanged.
func (s *RequestService) markIssued(ctx context.Context, id domain.RequestID, contentID string) (*domain.CertificateRequest, error) {
	req, err := s.store.Requests().MarkIssued(ctx, id, contentID, s.now())
	if err == nil {
		s.metrics.RecordTransition(string(domain.StatusIssued))
		return req, nil
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrRequestNotFound
	case errors.Is(err, storage.ErrConflict):
		current, getErr := s.store.Requests().GetByID(ctx, id)
		if getErr != nil {
			return nil, ErrInvalidTransition
		}
		if current.Issued() && *current.IPFSHash == contentID {
			return current, nil
		}
		return nil, ErrInvalidTransition
	default:
		return nil, fmt.Errorf("failed to mark request issued: %w", err)
	}
}

// Get is the reconciliation query: current status, content identifier and
// ledger fields of a request the caller is a party to.
func (s *RequestService) Get(ctx context.Context, caller domain.Caller, id domain.RequestID) (*domain.RequestView, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Student != caller.UserID && req.Organization != caller.UserID {
		return nil, ErrForbidden
	}

	views, err := s.join(ctx, []*domain.CertificateRequest{req}, true, true)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *RequestService) load(ctx context.Context, id domain.RequestID) (*domain.CertificateRequest, error) {
	req, err := s.store.Requests().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// SetVerificationCharge sets the amount verifiers pay for a request's certificate
func (s *RequestService) SetVerificationCharge(ctx context.Context, caller domain.Caller, id domain.RequestID, in *domain.VerificationChargeInput) (*domain.CertificateRequest, error) {
	if err := requireRole(caller, domain.RoleOrganization); err != nil {
		return nil, err
	}
	charge, err := domain.ParseAmount(in.VerificationCharge)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	req, err := s.store.Requests().SetVerificationCharge(ctx, id, caller.UserID, charge)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrInvalidTransition
		default:
			return nil, fmt.Errorf("failed to update request: %w", err)
		}
	}
	return req, nil
}

// RecordLedgerCommit stores the ledger transaction that anchored an issued
// certificate. Repeating the same transaction hash is a no-op.
func (s *RequestService) RecordLedgerCommit(ctx context.Context, caller domain.Caller, id domain.RequestID, in *domain.LedgerCommitInput) (*domain.CertificateRequest, error) {
	if err := requireRole(caller, domain.RoleOrganization); err != nil {
		return nil, err
	}
	txHash, err := domain.NormalizeTxHash(in.TxHash)
	if err != nil {
		return nil, ErrInvalidLedgerTx
	}

	req, err := s.store.Requests().RecordLedgerCommit(ctx, id, caller.UserID, txHash, s.now())
	if err == nil {
		s.logger.Info("Ledger commit recorded",
			zap.String("request_id", id.String()),
			zap.String("tx_hash", txHash))
		return req, nil
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrRequestNotFound
	case errors.Is(err, storage.ErrConflict):
		current, getErr := s.load(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !current.Anchored() {
			return nil, ErrInvalidTransition
		}
		if *current.LedgerTxHash == txHash {
			return current, nil
		}
		return nil, ErrAlreadyCommitted
	default:
		return nil, fmt.Errorf("failed to record ledger commit: %w", err)
	}
}

// AdminGet returns any request with both parties joined
func (s *RequestService) AdminGet(ctx context.Context, id domain.RequestID) (*domain.RequestView, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.join(ctx, []*domain.CertificateRequest{req}, true, true)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// AdminList returns requests matching filter with both parties joined
func (s *RequestService) AdminList(ctx context.Context, filter storage.RequestFilter) ([]*domain.RequestView, error) {
	requests, err := s.store.Requests().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return s.join(ctx, requests, true, true)
}
