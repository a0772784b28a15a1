package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/issuancelock"
	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/internal/storage"
	"github.com/pawanM12/deCertify/internal/transform"
	"github.com/pawanM12/deCertify/pkg/config"
)

// Services aggregates all application services
type Services struct {
	User     *UserService
	Request  *RequestService
	Issuance *IssuanceService
}

// Dependencies are the external collaborators of the services
type Dependencies struct {
	Content contentstore.Client
	Locker  issuancelock.Locker
	Metrics *metrics.Metrics
}

// NewServices creates a new Services instance
func NewServices(store storage.Store, cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Services, error) {
	level, err := transform.ParseLevel(cfg.Issuance.QRLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid issuance configuration: %w", err)
	}
	transformer := transform.NewTransformer(transform.Options{
		Level:  level,
		Scale:  cfg.Issuance.QRScale,
		Margin: cfg.Issuance.QRMargin,
		Pixels: cfg.Issuance.QRPixels,
	})

	requests := NewRequestService(store, deps.Metrics, logger)

	return &Services{
		User:     NewUserService(store, cfg, logger),
		Request:  requests,
		Issuance: NewIssuanceService(requests, deps.Content, transformer, deps.Locker, cfg.ContentStore.GatewayURL, deps.Metrics, logger),
	}, nil
}
