package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/issuancelock"
	"github.com/pawanM12/deCertify/internal/metrics"
)

// DocumentTransformer embeds a verification payload into a document
type DocumentTransformer interface {
	EmbedVerificationCode(doc []byte, payload string) ([]byte, error)
}

// IssueInput is the document an organization uploads for an accepted request
type IssueInput struct {
	Document []byte
	FileName string
}

// IssueResult is returned after a successful issuance. ContentID is the
// identifier the caller commits on the ledger.
type IssueResult struct {
	Request           *domain.CertificateRequest `json:"request"`
	OriginalContentID string                     `json:"originalContentId"`
	ContentID         string                     `json:"contentId"`
	VerificationURL   string                     `json:"verificationUrl"`
}

// IssuanceService drives accepted requests to issued: upload the original,
// stamp a code pointing at it, upload the stamped copy, then mark issued.
type IssuanceService struct {
	requests    *RequestService
	content     contentstore.Client
	transformer DocumentTransformer
	locker      issuancelock.Locker
	gateway     string
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewIssuanceService creates a new IssuanceService. A nil locker disables locking.
func NewIssuanceService(
	requests *RequestService,
	content contentstore.Client,
	transformer DocumentTransformer,
	locker issuancelock.Locker,
	gateway string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IssuanceService {
	if locker == nil {
		locker = issuancelock.Noop{}
	}
	return &IssuanceService{
		requests:    requests,
		content:     content,
		transformer: transformer,
		locker:      locker,
		gateway:     gateway,
		metrics:     m,
		logger:      logger.Named("issuance-service"),
	}
}

func uploadName(kind string, id domain.RequestID) string {
	return fmt.Sprintf("deCertify-%s-Certificate-%s", kind, id)
}

func uploadKeyValues(req *domain.CertificateRequest, docType string) map[string]string {
	return map[string]string{
		"requestId":      req.ID.String(),
		"organizationId": req.Organization.String(),
		"studentId":      req.Student.String(),
		"type":           docType,
	}
}

// loadForIssue checks that the caller is the organization owning an accepted request
func (s *IssuanceService) loadForIssue(ctx context.Context, caller domain.Caller, id domain.RequestID) (*domain.CertificateRequest, error) {
	if err := requireRole(caller, domain.RoleOrganization); err != nil {
		return nil, err
	}
	req, err := s.requests.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Organization != caller.UserID {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// Issue runs the orchestration for one accepted request. Failures before
// mark_issued leave the request accepted. A mark_issued failure is reported
// as ErrPartialIssuance with the uploaded content identifier.
func (s *IssuanceService) Issue(ctx context.Context, caller domain.Caller, id domain.RequestID, in IssueInput) (*IssueResult, error) {
	log := s.logger.With(zap.String("request_id", id.String()))

	req, err := s.loadForIssue(ctx, caller, id)
	if err == nil && req.Status != domain.StatusAccepted {
		err = ErrInvalidTransition
	}
	if err == nil && len(in.Document) == 0 {
		err = ErrInvalidDocument
	}
	if err != nil {
		s.metrics.RecordIssuance(metrics.OutcomeRejected)
		log.Info("Issuance refused", zap.Error(err))
		return nil, &IssuanceError{Step: StepLoad, Err: err}
	}

	release, err := s.locker.Acquire(ctx, id.String())
	if err != nil {
		s.metrics.RecordIssuance(metrics.OutcomeRejected)
		if errors.Is(err, issuancelock.ErrLocked) {
			err = ErrIssuanceInProgress
		}
		return nil, &IssuanceError{Step: StepLoad, Err: err}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release issuance lock", zap.Error(err))
		}
	}()

	var (
		original *contentstore.Result
		payload  string
		stamped  []byte
		final    *contentstore.Result
		issued   *domain.CertificateRequest
	)

	fileName := in.FileName
	if fileName == "" {
		fileName = "certificate.pdf"
	}

	// No step compensates: uploads are content addressed and left as orphans on failure
	run := &saga{
		name:   "issue",
		logger: s.logger,
		observe: func(step string, d time.Duration) {
			s.metrics.ObserveStep(step, d)
		},
		steps: []sagaStep{
			{
				name: StepUploadOriginal,
				run: func(ctx context.Context) error {
					var err error
					original, err = s.content.Upload(ctx, contentstore.Upload{
						Name:      uploadName("Original", id),
						FileName:  fileName,
						Data:      in.Document,
						KeyValues: uploadKeyValues(req, "original_certificate"),
					})
					return err
				},
			},
			{
				name: StepBuildPayload,
				run: func(ctx context.Context) error {
					if original == nil || original.ContentID == "" {
						return fmt.Errorf("%w: empty content identifier", contentstore.ErrUploadFailed)
					}
					payload = contentstore.GatewayURL(s.gateway, original.ContentID)
					return nil
				},
			},
			{
				name: StepTransform,
				run: func(ctx context.Context) error {
					var err error
					stamped, err = s.transformer.EmbedVerificationCode(in.Document, payload)
					return err
				},
			},
			{
				name: StepUploadFinal,
				run: func(ctx context.Context) error {
					var err error
					final, err = s.content.Upload(ctx, contentstore.Upload{
						Name:      uploadName("Embedded", id),
						FileName:  "embedded_" + fileName,
						Data:      stamped,
						KeyValues: uploadKeyValues(req, "embedded_certificate_final"),
					})
					return err
				},
			},
			{
				name: StepMarkIssued,
				run: func(ctx context.Context) error {
					var err error
					issued, err = s.requests.markIssued(ctx, id, final.ContentID)
					return err
				},
			},
		},
	}

	if err := run.execute(ctx); err != nil {
		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			return nil, err
		}
		issErr := &IssuanceError{Step: stepErr.Step, Err: stepErr.Err}
		if issErr.Partial() {
			issErr.ContentID = final.ContentID
			s.metrics.RecordIssuance(metrics.OutcomePartial)
			log.Error("Partial issuance: documents uploaded but request not marked issued",
				zap.String("content_id", final.ContentID),
				zap.String("original_content_id", original.ContentID),
				zap.Error(stepErr.Err))
		} else {
			s.metrics.RecordIssuance(metrics.OutcomeFailed)
			log.Error("Issuance failed", zap.String("step", stepErr.Step), zap.Error(stepErr.Err))
		}
		return nil, issErr
	}

	s.metrics.RecordIssuance(metrics.OutcomeIssued)
	log.Info("Certificate issued",
		zap.String("content_id", final.ContentID),
		zap.String("original_content_id", original.ContentID))

	return &IssueResult{
		Request:           issued,
		OriginalContentID: original.ContentID,
		ContentID:         final.ContentID,
		VerificationURL:   payload,
	}, nil
}

// RetryMarkIssued re-runs only the final transition after a partial issuance
func (s *IssuanceService) RetryMarkIssued(ctx context.Context, caller domain.Caller, id domain.RequestID, in *domain.RetryMarkIssuedInput) (*domain.CertificateRequest, error) {
	if _, err := s.loadForIssue(ctx, caller, id); err != nil {
		return nil, err
	}
	contentID, err := contentstore.ParseContentID(in.ContentID)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.markIssued(ctx, id, contentID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Issuance completed by retry",
		zap.String("request_id", id.String()),
		zap.String("content_id", contentID))
	return req, nil
}
