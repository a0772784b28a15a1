// Package transform stamps a scannable verification code onto the first page
// of a PDF document.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/skip2/go-qrcode"
)

var (
	// ErrMalformedDocument is returned when the input cannot be parsed as a PDF
	ErrMalformedDocument = errors.New("malformed document")
	// ErrEncoding is returned when the payload cannot be rendered as a QR code
	ErrEncoding = errors.New("payload cannot be encoded")
)

// Options controls the size, position and robustness of the stamped code
type Options struct {
	// Level is the QR error correction level
	Level qrcode.RecoveryLevel
	// Scale is the side of the code as a fraction of the page width
	Scale float64
	// Margin is the distance in points from the bottom-right corner
	Margin float64
	// Pixels is the side of the rendered PNG
	Pixels int
}

// DefaultOptions returns the placement used for issued certificates
func DefaultOptions() Options {
	return Options{
		Level:  qrcode.Highest,
		Scale:  0.16,
		Margin: 30,
		Pixels: 512,
	}
}

// ParseLevel maps a configuration string onto a QR error correction level
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(s) {
	case "low":
		return qrcode.Low, nil
	case "medium":
		return qrcode.Medium, nil
	case "high":
		return qrcode.High, nil
	case "highest", "":
		return qrcode.Highest, nil
	default:
		return 0, fmt.Errorf("unknown qr level %q", s)
	}
}

var configDirOnce sync.Once

// Transformer embeds verification payloads into PDF documents.
// It holds no mutable state and is safe for concurrent use.
type Transformer struct {
	opts Options
}

// NewTransformer creates a Transformer. Zero fields in opts take the defaults.
func NewTransformer(opts Options) *Transformer {
	configDirOnce.Do(api.DisableConfigDir)

	def := DefaultOptions()
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = def.Scale
	}
	if opts.Margin < 0 {
		opts.Margin = def.Margin
	}
	if opts.Pixels <= 0 {
		opts.Pixels = def.Pixels
	}
	return &Transformer{opts: opts}
}

// Options returns the effective options
func (t *Transformer) Options() Options {
	return t.opts
}

// EncodeQR renders payload as a square PNG QR code. The output depends only
// on its inputs.
func EncodeQR(payload string, level qrcode.RecoveryLevel, pixels int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrEncoding)
	}
	code, err := qrcode.New(payload, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	png, err := code.PNG(pixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return png, nil
}

// Placement returns the pdfcpu watermark description that anchors the code
// at the bottom-right of the page.
func (t *Transformer) Placement() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("position:br, offset:%s %s, scalefactor:%s rel, rotation:0, opacity:1",
		f(-t.opts.Margin), f(t.opts.Margin), f(t.opts.Scale))
}

func (t *Transformer) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// EmbedVerificationCode returns a copy of doc with payload stamped as a QR
// code on page 1. doc is never modified.
func (t *Transformer) EmbedVerificationCode(doc []byte, payload string) ([]byte, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}

	png, err := EncodeQR(payload, t.opts.Level, t.opts.Pixels)
	if err != nil {
		return nil, err
	}

	conf := t.configuration()
	if err := api.Validate(bytes.NewReader(doc), conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	pages, err := api.PageCount(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if pages < 1 {
		return nil, fmt.Errorf("%w: document has no pages", ErrMalformedDocument)
	}

	wm, err := buildStamp(png, t.Placement())
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, []string{"1"}, wm, t.configuration()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return out.Bytes(), nil
}

func buildStamp(png []byte, placement string) (*model.Watermark, error) {
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(png), placement, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build stamp: %v", ErrEncoding, err)
	}
	return wm, nil
}
