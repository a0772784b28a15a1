package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/pkg/config"
)

const pinFilePath = "/pinning/pinFileToIPFS"

type pinataMetadata struct {
	Name      string            `json:"name,omitempty"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinataClient uploads documents through the Pinata pinning API
type PinataClient struct {
	client *resty.Client
	logger *zap.Logger
}

// NewPinataClient creates a Pinata client. A JWT takes precedence over the API key pair.
func NewPinataClient(cfg *config.PinataConfig, logger *zap.Logger) (*PinataClient, error) {
	if cfg.JWT == "" && (cfg.APIKey == "" || cfg.SecretKey == "") {
		return nil, fmt.Errorf("pinata credentials are not configured")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.pinata.cloud"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if cfg.JWT != "" {
		client.SetAuthToken(cfg.JWT)
	} else {
		client.SetHeaders(map[string]string{
			"pinata_api_key":        cfg.APIKey,
			"pinata_secret_api_key": cfg.SecretKey,
		})
	}

	return &PinataClient{client: client, logger: logger.Named("pinata")}, nil
}

// Upload implements Client
func (p *PinataClient) Upload(ctx context.Context, u Upload) (*Result, error) {
	meta, err := json.Marshal(pinataMetadata{Name: u.Name, KeyValues: u.KeyValues})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pin metadata: %w", err)
	}

	fileName := u.FileName
	if fileName == "" {
		fileName = u.Name
	}

	var out pinResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(u.Data)).
		SetMultipartFormData(map[string]string{"pinataMetadata": string(meta)}).
		SetResult(&out).
		Post(pinFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if resp.IsError() {
		p.logger.Warn("Pin rejected",
			zap.String("name", u.Name),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", truncate(resp.Body(), 512)))
		return nil, fmt.Errorf("%w: pinata returned %d", ErrUploadFailed, resp.StatusCode())
	}

	contentID, err := ParseContentID(out.IpfsHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	result := &Result{ContentID: contentID, Size: out.PinSize}
	if ts, err := time.Parse(time.RFC3339, out.Timestamp); err == nil {
		result.Timestamp = ts
	} else {
		result.Timestamp = time.Now()
	}

	p.logger.Debug("Pinned document",
		zap.String("name", u.Name),
		zap.String("content_id", contentID),
		zap.Int64("size", out.PinSize))

	return result, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
