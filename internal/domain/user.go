package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Role is the closed set of identity kinds known to the system
type Role string

const (
	RoleStudent      Role = "student"
	RoleOrganization Role = "organization"
)

// ErrUnknownRole is returned when a role string is not one of the known roles
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a string into a Role, rejecting anything outside the closed set
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleOrganization:
		return RoleOrganization, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleOrganization:
		return true
	default:
		return false
	}
}

// UserID represents a unique user identifier
type UserID string

// NewUserID creates a new user ID
func NewUserID() UserID {
	return UserID(uuid.New().String())
}

// String returns the string representation
func (u UserID) String() string {
	return string(u)
}

// ErrInvalidWalletAddress is returned for addresses that are not 20-byte hex strings
var ErrInvalidWalletAddress = errors.New("invalid wallet address")

// NormalizeWalletAddress validates a hex wallet address and returns its lower-case form.
// The lower-case form is the correlation key against the ledger.
func NormalizeWalletAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidWalletAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// User represents a registered identity (student or organization)
type User struct {
	ID                     UserID    `json:"_id" bson:"_id"`
	WalletAddress          string    `json:"walletAddress" bson:"wallet_address"`
	Name                   string    `json:"name" bson:"name"`
	Role                   Role      `json:"userType" bson:"user_type"`
	PasswordHash           *string   `json:"-" bson:"password_hash,omitempty"`
	Email                  string    `json:"email,omitempty" bson:"email,omitempty"`
	IsBlockchainRegistered bool      `json:"isBlockchainRegistered" bson:"is_blockchain_registered"`
	CreatedAt              time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt              time.Time `json:"updatedAt" bson:"updated_at"`
}

// Summary returns the public subset of the user used when joining onto requests
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:            u.ID,
		Name:          u.Name,
		WalletAddress: u.WalletAddress,
		Email:         u.Email,
	}
}

// UserSummary is the joined view of a counterparty
type UserSummary struct {
	ID            UserID `json:"_id"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email,omitempty"`
}

// Organization is the profile attached to every organization user
type Organization struct {
	ID          string    `json:"_id" bson:"_id"`
	UserID      UserID    `json:"user" bson:"user_id"`
	Description string    `json:"description" bson:"description"`
	Website     string    `json:"website" bson:"website"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// Caller is the authenticated identity on whose behalf an operation runs.
// It is passed explicitly into every service call.
type Caller struct {
	UserID UserID
	Role   Role
	Wallet string
}

// Is reports whether the caller has the given role
func (c Caller) Is(role Role) bool {
	return c.Role == role
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	WalletAddress string  `json:"walletAddress" binding:"required,ethaddr"`
	Name          string  `json:"name" binding:"required"`
	UserType      string  `json:"userType" binding:"required,oneof=student organization"`
	Password      *string `json:"password,omitempty"`
	Email         string  `json:"email,omitempty" binding:"omitempty,email"`
	Description   string  `json:"description,omitempty"`
	Website       string  `json:"website,omitempty" binding:"omitempty,url"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	WalletAddress string  `json:"walletAddress" binding:"required"`
	Password      *string `json:"password,omitempty"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	ID                     UserID `json:"_id"`
	WalletAddress          string `json:"walletAddress"`
	Name                   string `json:"name"`
	UserType               Role   `json:"userType"`
	Email                  string `json:"email,omitempty"`
	IsBlockchainRegistered bool   `json:"isBlockchainRegistered"`
	Token                  string `json:"token"`
}
