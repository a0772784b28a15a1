package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/storage"
)

// RequestStore implements MongoDB certificate request storage.
// Status changes use FindOneAndUpdate with the expected prior state in the
// filter, so concurrent writers cannot both win a transition.
type RequestStore struct {
	collection *mongo.Collection
}

func (s *RequestStore) Create(ctx context.Context, req *domain.CertificateRequest) error {
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt

	_, err := s.collection.InsertOne(ctx, req)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *RequestStore) GetByID(ctx context.Context, id domain.RequestID) (*domain.CertificateRequest, error) {
	var req domain.CertificateRequest
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func filterDocument(f storage.RequestFilter) bson.M {
	filter := bson.M{}
	if f.Student != "" {
		filter["student"] = f.Student
	}
	if f.Organization != "" {
		filter["organization"] = f.Organization
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Unanchored {
		filter["ledger_tx_hash"] = bson.M{"$exists": false}
	}
	return filter
}

func (s *RequestStore) List(ctx context.Context, filter storage.RequestFilter) ([]*domain.CertificateRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, filterDocument(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	requests := make([]*domain.CertificateRequest, 0)
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, nil
}

// conditionalUpdate applies set to the document matching owner+precondition.
// When nothing matches it tells a missing record apart from a failed precondition.
func (s *RequestStore) conditionalUpdate(ctx context.Context, owner, precondition, set bson.M) (*domain.CertificateRequest, error) {
	filter := bson.M{}
	for k, v := range owner {
		filter[k] = v
	}
	for k, v := range precondition {
		filter[k] = v
	}
	set["updated_at"] = time.Now()

	var req domain.CertificateRequest
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if err == nil {
		return &req, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	n, err := s.collection.CountDocuments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to check request: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return nil, storage.ErrConflict
}

func (s *RequestStore) UpdateStatus(ctx context.Context, id domain.RequestID, organization domain.UserID, from, to domain.RequestStatus, remarks string) (*domain.CertificateRequest, error) {
	set := bson.M{"status": to}
	if remarks != "" {
		set["remarks"] = remarks
	}
	return s.conditionalUpdate(ctx,
		bson.M{"_id": id, "organization": organization},
		bson.M{"status": from},
		set,
	)
}

func (s *RequestStore) MarkIssued(ctx context.Context, id domain.RequestID, contentID string, issuedAt time.Time) (*domain.CertificateRequest, error) {
	return s.conditionalUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"status": domain.StatusAccepted, "ipfs_hash": bson.M{"$exists": false}},
		bson.M{"status": domain.StatusIssued, "ipfs_hash": contentID, "issued_at": issuedAt},
	)
}

func (s *RequestStore) SetVerificationCharge(ctx context.Context, id domain.RequestID, organization domain.UserID, charge domain.Amount) (*domain.CertificateRequest, error) {
	return s.conditionalUpdate(ctx,
		bson.M{"_id": id, "organization": organization},
		bson.M{"status": bson.M{"$in": []domain.RequestStatus{domain.StatusPending, domain.StatusAccepted}}},
		bson.M{"verification_charge": charge},
	)
}

func (s *RequestStore) RecordLedgerCommit(ctx context.Context, id domain.RequestID, organization domain.UserID, txHash string, committedAt time.Time) (*domain.CertificateRequest, error) {
	return s.conditionalUpdate(ctx,
		bson.M{"_id": id, "organization": organization},
		bson.M{"status": domain.StatusIssued, "ledger_tx_hash": bson.M{"$exists": false}},
		bson.M{"ledger_tx_hash": txHash, "ledger_committed_at": committedAt},
	)
}
