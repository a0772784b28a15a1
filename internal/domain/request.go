package domain

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
)

// RequestStatus is the state of a certificate request
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
	StatusIssued   RequestStatus = "issued"
)

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusIssued:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status transitions are possible from s
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusIssued
}

// CanTransition reports whether the state machine allows from -> to.
// pending -> accepted|rejected, accepted -> issued.
func CanTransition(from, to RequestStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusAccepted || to == StatusRejected
	case StatusAccepted:
		return to == StatusIssued
	default:
		return false
	}
}

// RequestID identifies a certificate request
type RequestID string

// NewRequestID creates a new request ID
func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// String returns the string representation
func (r RequestID) String() string {
	return string(r)
}

// Amount is an unsigned integer amount in the ledger's smallest unit, kept as
// a canonical decimal string so it never loses precision.
type Amount string

// ZeroAmount is the default for issuance amounts and verification charges
const ZeroAmount Amount = "0"

// ErrInvalidAmount is returned for amounts that are not unsigned decimal integers within 256 bits
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount validates a decimal amount string. An empty string yields ZeroAmount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAmount, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidAmount
		}
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return "", ErrInvalidAmount
	}
	return Amount(v.String()), nil
}

// Big returns the amount as a big integer
func (a Amount) Big() *big.Int {
	v, ok := new(big.Int).SetString(string(a), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// ErrInvalidTxHash is returned for ledger transaction hashes that are not 32-byte hex strings
var ErrInvalidTxHash = errors.New("invalid transaction hash")

// NormalizeTxHash validates a 0x-prefixed 32-byte transaction hash and returns its canonical form
func NormalizeTxHash(s string) (string, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return "", ErrInvalidTxHash
	}
	return common.BytesToHash(b).Hex(), nil
}

// CredentialMetadata describes the credential being requested; immutable after creation
type CredentialMetadata struct {
	USN              string `json:"usn,omitempty" bson:"usn,omitempty"`
	YearOfGraduation int    `json:"yearOfGraduation,omitempty" bson:"year_of_graduation,omitempty"`
	CertificateType  string `json:"certificateType,omitempty" bson:"certificate_type,omitempty"`
}

// CertificateRequest is a student's request for a certificate from an organization.
// IPFSHash and IssuedAt are set together, exactly once, on the transition into issued.
// LedgerTxHash and LedgerCommittedAt are set together after the caller commits on the ledger.
type CertificateRequest struct {
	ID                 RequestID     `json:"_id" bson:"_id"`
	Student            UserID        `json:"student" bson:"student"`
	Organization       UserID        `json:"organization" bson:"organization"`
	Status             RequestStatus `json:"status" bson:"status"`
	IssuanceAmount     Amount        `json:"issuanceAmount" bson:"issuance_amount"`
	VerificationCharge Amount        `json:"verificationCharge" bson:"verification_charge"`
	Remarks            string        `json:"remarks,omitempty" bson:"remarks,omitempty"`
	IPFSHash           *string       `json:"ipfsHash,omitempty" bson:"ipfs_hash,omitempty"`
	IssuedAt           *time.Time    `json:"issuedAt,omitempty" bson:"issued_at,omitempty"`
	LedgerTxHash       *string       `json:"ledgerTxHash,omitempty" bson:"ledger_tx_hash,omitempty"`
	LedgerCommittedAt  *time.Time    `json:"ledgerCommittedAt,omitempty" bson:"ledger_committed_at,omitempty"`

	CredentialMetadata `bson:",inline"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Issued reports whether the request carries its issuance fields
func (r *CertificateRequest) Issued() bool {
	return r.Status == StatusIssued && r.IPFSHash != nil && r.IssuedAt != nil
}

// Anchored reports whether a ledger commit has been recorded
func (r *CertificateRequest) Anchored() bool {
	return r.LedgerTxHash != nil && r.LedgerCommittedAt != nil
}

// Clone returns a deep copy of the request
func (r *CertificateRequest) Clone() *CertificateRequest {
	c := *r
	if r.IPFSHash != nil {
		v := *r.IPFSHash
		c.IPFSHash = &v
	}
	if r.IssuedAt != nil {
		v := *r.IssuedAt
		c.IssuedAt = &v
	}
	if r.LedgerTxHash != nil {
		v := *r.LedgerTxHash
		c.LedgerTxHash = &v
	}
	if r.LedgerCommittedAt != nil {
		v := *r.LedgerCommittedAt
		c.LedgerCommittedAt = &v
	}
	return &c
}

// RequestView is a request with its counterparty joined in
type RequestView struct {
	*CertificateRequest
	StudentDetails      *UserSummary `json:"studentDetails,omitempty"`
	OrganizationDetails *UserSummary `json:"organizationDetails,omitempty"`
}

// CreateRequestInput is the body of a new certificate request
type CreateRequestInput struct {
	OrganizationID   string `json:"organizationId" binding:"required"`
	IssuanceAmount   string `json:"issuanceAmount" binding:"omitempty,wei"`
	USN              string `json:"usn"`
	YearOfGraduation int    `json:"yearOfGraduation" binding:"omitempty,gte=1900,lte=2200"`
	CertificateType  string `json:"certificateType"`
}

// UpdateStatusInput is the body of an accept/reject call
type UpdateStatusInput struct {
	Status  RequestStatus `json:"status" binding:"required,oneof=accepted rejected"`
	Remarks string        `json:"remarks"`
}

// VerificationChargeInput sets the charge verifiers pay for a request's certificate
type VerificationChargeInput struct {
	VerificationCharge string `json:"verificationCharge" binding:"required,wei"`
}

// LedgerCommitInput records the ledger transaction that anchored an issued certificate
type LedgerCommitInput struct {
	TxHash string `json:"txHash" binding:"required"`
}

// RetryMarkIssuedInput re-runs only the final state transition of an issuance
type RetryMarkIssuedInput struct {
	ContentID string `json:"contentId" binding:"required"`
}
