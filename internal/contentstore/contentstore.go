// Package contentstore uploads documents to a content-addressed store and
// returns their content identifiers.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/pkg/config"
)

// ErrUploadFailed is returned when the store is unreachable or rejects an upload
var ErrUploadFailed = errors.New("upload failed")

// ErrInvalidContentID is returned for strings that are not valid CIDs
var ErrInvalidContentID = errors.New("invalid content identifier")

// Upload is one document sent to the store
type Upload struct {
	// Name is the human readable label stored with the pin
	Name string
	// FileName is the multipart file name
	FileName string
	Data     []byte
	// KeyValues correlate the upload with the request, student and organization
	KeyValues map[string]string
}

// Result describes a stored document
type Result struct {
	ContentID string
	Size      int64
	Timestamp time.Time
}

// Client stores byte buffers and returns stable content identifiers
type Client interface {
	Upload(ctx context.Context, u Upload) (*Result, error)
}

// ParseContentID validates s as a CID and returns its canonical string form
func ParseContentID(s string) (string, error) {
	c, err := cid.Decode(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContentID, err)
	}
	return c.String(), nil
}

// GatewayURL returns the public locator of a content identifier
func GatewayURL(gateway, contentID string) string {
	return strings.TrimRight(gateway, "/") + "/ipfs/" + contentID
}

// New creates the content store client named in the configuration
func New(cfg *config.ContentStoreConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "pinata":
		return NewPinataClient(&cfg.Pinata, logger)
	default:
		return nil, fmt.Errorf("unsupported content store type: %s", cfg.Type)
	}
}
