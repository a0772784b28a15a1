package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/internal/storage"
	"github.com/pawanM12/deCertify/internal/storage/memory"
	"github.com/pawanM12/deCertify/pkg/config"
	"github.com/pawanM12/deCertify/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        5000,
			MaxUploadMB: 1,
		},
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			ExpiryHours: 24,
			Issuer:      "decertify-test",
		},
		ContentStore: config.ContentStoreConfig{
			Type:       "memory",
			GatewayURL: "https://gw.example",
		},
		Issuance: config.IssuanceConfig{
			QRLevel: "highest",
			QRScale: 0.16,
		},
	}
}

type testServer struct {
	router   *gin.Engine
	store    storage.Store
	content  *contentstore.MemoryStore
	services *service.Services
}

func passThrough(c *gin.Context) { c.Next() }

func newTestServer(t *testing.T, store storage.Store) *testServer {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	logger := zap.NewNop()
	cfg := testConfig()
	content := contentstore.NewMemoryStore()

	services, err := service.NewServices(store, cfg, service.Dependencies{
		Content: content,
		Metrics: metrics.New(),
	}, logger)
	require.NoError(t, err)

	router := gin.New()
	NewHandlers(services, cfg, logger).RegisterRoutes(router, middleware.AuthMiddleware(services.User, logger), passThrough)
	return &testServer{router: router, store: store, content: content, services: services}
}

var walletCounter atomic.Uint64

func nextWallet() string {
	return fmt.Sprintf("0x%040x", walletCounter.Add(1))
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path, token, field string, doc []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if doc != nil {
		part, err := mw.CreateFormFile(field, "certificate.pdf")
		require.NoError(t, err)
		_, err = part.Write(doc)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type account struct {
	ID    string
	Token string
}

func (s *testServer) register(t *testing.T, role domain.Role, name string) account {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"walletAddress": nextWallet(),
		"name":          name,
		"userType":      string(role),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return account{ID: resp.ID.String(), Token: resp.Token}
}

func (s *testServer) acceptedRequest(t *testing.T) (account, account, string) {
	t.Helper()
	student := s.register(t, domain.RoleStudent, "Asha")
	org := s.register(t, domain.RoleOrganization, "RV College")

	w := s.do(t, http.MethodPost, "/requests", student.Token, gin.H{"organizationId": org.ID, "usn": "1RV20CS001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["_id"].(string)

	w = s.do(t, http.MethodPut, "/requests/"+id+"/status", org.Token, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return student, org, id
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var l []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l), w.Body.String())
	return l
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 14)
	pdf.Cell(40, 10, "Bachelor of Engineering")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestHandlers_Status(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/status", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "decertify", body["service"])
}

func TestHandlers_Register(t *testing.T) {
	s := newTestServer(t, nil)
	wallet := nextWallet()

	w := s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"walletAddress": strings.ToUpper(wallet[2:]),
		"name":          "Asha",
		"userType":      "student",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, wallet, body["walletAddress"])
	assert.NotEmpty(t, body["token"])
	assert.NotContains(t, body, "password_hash")

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"duplicate wallet", gin.H{"walletAddress": wallet, "name": "Copy", "userType": "student"}, http.StatusConflict},
		{"malformed wallet", gin.H{"walletAddress": "0x12", "name": "X", "userType": "student"}, http.StatusBadRequest},
		{"unknown role", gin.H{"walletAddress": nextWallet(), "name": "X", "userType": "verifier"}, http.StatusBadRequest},
		{"missing name", gin.H{"walletAddress": nextWallet(), "userType": "student"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHandlers_LoginAndMe(t *testing.T) {
	s := newTestServer(t, nil)
	wallet := nextWallet()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"walletAddress": wallet,
		"name":          "RV College",
		"userType":      "organization",
		"password":      "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"walletAddress": wallet})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"walletAddress": wallet, "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["token"].(string)

	w = s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "RV College", me["name"])
	assert.Equal(t, "organization", me["userType"])

	w = s.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlers_BlockchainStatus(t *testing.T) {
	s := newTestServer(t, nil)
	asha := s.register(t, domain.RoleStudent, "Asha")
	ravi := s.register(t, domain.RoleStudent, "Ravi")

	w := s.do(t, http.MethodPut, "/auth/blockchain-status/"+asha.ID, ravi.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/api/auth/update-blockchain-status/"+asha.ID, asha.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["isBlockchainRegistered"])
}

func TestHandlers_ListOrganizations(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, domain.RoleOrganization, "RV College")
	s.register(t, domain.RoleStudent, "Asha")

	for _, path := range []string{"/users/organizations", "/api/users/organizations"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		orgs := decodeList(t, w)
		require.Len(t, orgs, 1)
		assert.Equal(t, "RV College", orgs[0]["name"])
	}
}

func TestHandlers_RequestLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	student, org, id := s.acceptedRequest(t)

	w := s.do(t, http.MethodGet, "/requests?role=organization", org.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decodeList(t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "accepted", views[0]["status"])
	assert.Equal(t, "Asha", views[0]["studentDetails"].(map[string]interface{})["name"])

	w = s.do(t, http.MethodGet, "/requests?role=organization", student.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/requests/"+id+"/verification-charge", org.Token, gin.H{"verificationCharge": "5000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5000", decode(t, w)["verificationCharge"])

	w = s.upload(t, "/requests/"+id+"/issue", org.Token, "document", samplePDF(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	contentID := result["contentId"].(string)
	assert.NotEmpty(t, contentID)
	assert.Equal(t, "https://gw.example/ipfs/"+result["originalContentId"].(string), result["verificationUrl"])
	assert.Equal(t, 2, s.content.Uploads())

	w = s.do(t, http.MethodGet, "/certificates?role=student", student.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	certs := decodeList(t, w)
	require.Len(t, certs, 1)
	assert.Equal(t, contentID, certs[0]["ipfsHash"])

	txHash := "0x" + strings.Repeat("1f", 32)
	w = s.do(t, http.MethodPost, "/requests/"+id+"/ledger", org.Token, gin.H{"txHash": txHash})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/requests/"+id, student.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "issued", got["status"])
	assert.Equal(t, txHash, got["ledgerTxHash"])
	assert.NotEmpty(t, got["issuedAt"])

	// A second issue attempt is refused before any upload
	w = s.upload(t, "/requests/"+id+"/issue", org.Token, "document", samplePDF(t))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "load", decode(t, w)["step"])
	assert.Equal(t, 2, s.content.Uploads())
}

func TestHandlers_RejectThenTransition(t *testing.T) {
	s := newTestServer(t, nil)
	student := s.register(t, domain.RoleStudent, "Asha")
	org := s.register(t, domain.RoleOrganization, "RV College")

	w := s.do(t, http.MethodPost, "/api/users/request-certificate", student.Token, gin.H{"organizationId": org.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["_id"].(string)

	w = s.do(t, http.MethodPost, "/requests", student.Token, gin.H{"organizationId": org.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/users/request/"+id+"/status", org.Token, gin.H{"status": "rejected", "remarks": "missing transcript"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "missing transcript", decode(t, w)["remarks"])

	w = s.do(t, http.MethodPut, "/requests/"+id+"/status", org.Token, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "this request cannot be updated in its current state", decode(t, w)["error"])

	w = s.do(t, http.MethodPut, "/requests/"+id+"/status", org.Token, gin.H{"status": "issued"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/student-requests", student.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = s.do(t, http.MethodGet, "/api/users/organization-requests", org.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)
}

func TestHandlers_CreateRequestValidation(t *testing.T) {
	s := newTestServer(t, nil)
	student := s.register(t, domain.RoleStudent, "Asha")
	org := s.register(t, domain.RoleOrganization, "RV College")

	tests := []struct {
		name  string
		token string
		body  gin.H
		want  int
	}{
		{"missing organization", student.Token, gin.H{}, http.StatusBadRequest},
		{"negative amount", student.Token, gin.H{"organizationId": org.ID, "issuanceAmount": "-5"}, http.StatusBadRequest},
		{"unknown organization", student.Token, gin.H{"organizationId": "nope"}, http.StatusNotFound},
		{"organization caller", org.Token, gin.H{"organizationId": org.ID}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/requests", tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHandlers_IssueUploadValidation(t *testing.T) {
	s := newTestServer(t, nil)
	student, org, id := s.acceptedRequest(t)
	path := "/requests/" + id + "/issue"

	oversized := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), (1<<20)+(100<<10))...)

	tests := []struct {
		name  string
		token string
		field string
		doc   []byte
		want  int
	}{
		{"missing file", org.Token, "document", nil, http.StatusBadRequest},
		{"not a pdf", org.Token, "document", []byte("hello, world"), http.StatusUnsupportedMediaType},
		{"too large", org.Token, "document", oversized, http.StatusRequestEntityTooLarge},
		{"malformed pdf", org.Token, "file", []byte("%PDF-1.4\ngarbage"), http.StatusUnprocessableEntity},
		{"student caller", student.Token, "document", samplePDF(t), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(t, path, tt.token, tt.field, tt.doc)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	got, err := s.store.Requests().GetByID(context.Background(), domain.RequestID(id))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, got.Status)
}

func TestHandlers_LegacyUploadDocument(t *testing.T) {
	s := newTestServer(t, nil)
	_, org, id := s.acceptedRequest(t)

	w := s.upload(t, "/api/ipfs/upload-document/"+id, org.Token, "document", samplePDF(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["message"])

	got, err := s.store.Requests().GetByID(context.Background(), domain.RequestID(id))
	require.NoError(t, err)
	assert.Equal(t, *got.IPFSHash, body["pdfIpfsHash"])
}

// unavailableRequests fails MarkIssued to simulate the store going away after the uploads
type unavailableRequests struct {
	storage.RequestStore
	down atomic.Bool
}

func (u *unavailableRequests) MarkIssued(ctx context.Context, id domain.RequestID, contentID string, issuedAt time.Time) (*domain.CertificateRequest, error) {
	if u.down.Load() {
		return nil, storage.ErrDatabase
	}
	return u.RequestStore.MarkIssued(ctx, id, contentID, issuedAt)
}

type partialStore struct {
	storage.Store
	requests *unavailableRequests
}

func (p *partialStore) Requests() storage.RequestStore { return p.requests }

func TestHandlers_PartialIssuanceAndRetry(t *testing.T) {
	inner := memory.NewStore()
	store := &partialStore{Store: inner, requests: &unavailableRequests{RequestStore: inner.Requests()}}
	s := newTestServer(t, store)
	_, org, id := s.acceptedRequest(t)

	store.requests.down.Store(true)
	w := s.upload(t, "/requests/"+id+"/issue", org.Token, "document", samplePDF(t))
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "mark_issued", body["step"])
	assert.Equal(t, false, body["retryable"])
	contentID := body["content_id"].(string)
	assert.NotEmpty(t, contentID)

	w = s.do(t, http.MethodGet, "/requests/"+id, org.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "accepted", decode(t, w)["status"])

	store.requests.down.Store(false)
	w = s.do(t, http.MethodPost, "/requests/"+id+"/issue/retry", org.Token, gin.H{"contentId": "not-a-cid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/requests/"+id+"/issue/retry", org.Token, gin.H{"contentId": contentID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, contentID, decode(t, w)["ipfsHash"])

	// Same content id again is a no-op
	w = s.do(t, http.MethodPost, "/requests/"+id+"/issue/retry", org.Token, gin.H{"contentId": contentID})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid role", service.ErrInvalidRole, http.StatusForbidden},
		{"not found", fmt.Errorf("wrapped: %w", service.ErrRequestNotFound), http.StatusNotFound},
		{"transition", service.ErrInvalidTransition, http.StatusConflict},
		{"in progress", &service.IssuanceError{Step: service.StepLoad, Err: service.ErrIssuanceInProgress}, http.StatusConflict},
		{"upload", &service.IssuanceError{Step: service.StepUploadOriginal, Err: contentstore.ErrUploadFailed}, http.StatusBadGateway},
		{"unknown", storage.ErrDatabase, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			respondError(c, zap.NewNop(), tt.err)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

type staticCaller domain.Caller

func (s staticCaller) ValidateToken(string) (domain.Caller, error) { return domain.Caller(s), nil }

func TestHandlers_ListRequestsUnknownRole(t *testing.T) {
	s := newTestServer(t, nil)
	logger := zap.NewNop()

	tests := []struct {
		name   string
		role   domain.Role
		status int
	}{
		{"student", domain.RoleStudent, http.StatusOK},
		{"organization", domain.RoleOrganization, http.StatusOK},
		{"unknown", domain.Role("verifier"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			auth := middleware.AuthMiddleware(staticCaller{UserID: "someone", Role: tt.role}, logger)
			NewHandlers(s.services, testConfig(), logger).RegisterRoutes(router, auth, passThrough)

			req := httptest.NewRequest(http.MethodGet, "/requests", nil)
			req.Header.Set("Authorization", "Bearer any")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
