package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")

	ErrInvalidRole        = errors.New("caller role not allowed")
	ErrForbidden          = errors.New("access denied")
	ErrRequestNotFound    = errors.New("certificate request not found")
	ErrInvalidTransition  = errors.New("this request cannot be updated in its current state")
	ErrDuplicateRequest   = errors.New("a pending request to this organization already exists")
	ErrInvalidAmount      = errors.New("amount must be an unsigned integer below 2^256")
	ErrIssuanceInProgress = errors.New("issuance already in progress for this request")
	ErrPartialIssuance    = errors.New("documents uploaded but request not marked issued")
	ErrInvalidLedgerTx    = errors.New("invalid ledger transaction hash")
	ErrAlreadyCommitted   = errors.New("request already anchored with a different transaction")
	ErrInvalidDocument    = errors.New("invalid document")
)

// Issuance steps, in execution order
const (
	StepLoad           = "load"
	StepUploadOriginal = "upload_original"
	StepBuildPayload   = "build_payload"
	StepTransform      = "transform"
	StepUploadFinal    = "upload_final"
	StepMarkIssued     = "mark_issued"
)

// IssuanceError reports the orchestration step that failed. ContentID is the
// final content identifier when the failure happened after both uploads.
type IssuanceError struct {
	Step      string
	ContentID string
	Err       error
}

func (e *IssuanceError) Error() string {
	if e.ContentID != "" {
		return fmt.Sprintf("issuance failed at %s (content %s): %v", e.Step, e.ContentID, e.Err)
	}
	return fmt.Sprintf("issuance failed at %s: %v", e.Step, e.Err)
}

// Unwrap exposes the cause, plus ErrPartialIssuance when content was
// already uploaded.
func (e *IssuanceError) Unwrap() []error {
	if e.Step == StepMarkIssued {
		return []error{ErrPartialIssuance, e.Err}
	}
	return []error{e.Err}
}

// Partial reports whether uploads completed before the failure
func (e *IssuanceError) Partial() bool {
	return e.Step == StepMarkIssued
}
