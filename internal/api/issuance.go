package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/service"
)

const (
	documentField = "document"
	pdfMediaType  = "application/pdf"
	// multipartSlack covers boundaries and part headers around the file
	multipartSlack = 1 << 20
)

var errNotPDF = errors.New("document must be a PDF")

type uploadError struct {
	status int
	err    error
}

func (e *uploadError) Error() string { return e.err.Error() }

// readDocument reads the uploaded PDF from the document (or file) form field
func (h *Handlers) readDocument(c *gin.Context) (*service.IssueInput, *uploadError) {
	limit := h.cfg.Server.MaxUploadBytes()
	if limit <= 0 {
		limit = 10 << 20
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

	fh, err := c.FormFile(documentField)
	if errors.Is(err, http.ErrMissingFile) {
		fh, err = c.FormFile("file")
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Errorf("document exceeds %d bytes", limit)}
		}
		return nil, &uploadError{http.StatusBadRequest, errors.New("a document file is required")}
	}
	if fh.Size > limit {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Errorf("document exceeds %d bytes", limit)}
	}

	data, err := readPart(fh, limit)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, err}
	}
	if int64(len(data)) > limit {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Errorf("document exceeds %d bytes", limit)}
	}
	if http.DetectContentType(data) != pdfMediaType {
		return nil, &uploadError{http.StatusUnsupportedMediaType, errNotPDF}
	}

	return &service.IssueInput{Document: data, FileName: fh.Filename}, nil
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

func (h *Handlers) issue(c *gin.Context) (*service.IssueResult, bool) {
	caller, ok := h.caller(c)
	if !ok {
		return nil, false
	}

	in, uerr := h.readDocument(c)
	if uerr != nil {
		c.JSON(uerr.status, gin.H{"error": uerr.Error()})
		return nil, false
	}

	result, err := h.services.Issuance.Issue(c.Request.Context(), caller, requestID(c), *in)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	return result, true
}

// IssueCertificate stamps and uploads the certificate for an accepted request
// POST /requests/:id/issue
func (h *Handlers) IssueCertificate(c *gin.Context) {
	result, ok := h.issue(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// LegacyUploadDocument is IssueCertificate with the response shape of the original frontend
// POST /api/ipfs/upload-document/:requestId
func (h *Handlers) LegacyUploadDocument(c *gin.Context) {
	result, ok := h.issue(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Document uploaded and certificate issued",
		"pdfIpfsHash": result.ContentID,
	})
}

// RetryIssue re-runs only the final transition after a partial issuance
// POST /requests/:id/issue/retry
func (h *Handlers) RetryIssue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var in domain.RetryMarkIssuedInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.services.Issuance.RetryMarkIssued(c.Request.Context(), caller, requestID(c), &in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, req)
}
