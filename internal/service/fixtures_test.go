package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/domain"
	"github.com/pawanM12/deCertify/internal/issuancelock"
	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/internal/storage"
	"github.com/pawanM12/deCertify/internal/storage/memory"
	"github.com/pawanM12/deCertify/internal/transform"
	"github.com/pawanM12/deCertify/pkg/config"
)

const testGateway = "https://gw.example"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: 5000,
			Host: "localhost",
		},
		JWT: config.JWTConfig{
			Secret:      "test-secret-key-for-testing-only",
			Issuer:      "test-issuer",
			ExpiryHours: 24,
		},
		ContentStore: config.ContentStoreConfig{
			Type:       "memory",
			GatewayURL: testGateway,
		},
		Issuance: config.IssuanceConfig{
			QRLevel: "highest",
			QRScale: 0.16,
		},
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

var walletCounter atomic.Uint64

func nextWallet() string {
	return fmt.Sprintf("0x%040x", walletCounter.Add(1))
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

// testEnv wires the services over an in-memory store and content store
type testEnv struct {
	store    storage.Store
	content  *contentstore.MemoryStore
	users    *UserService
	requests *RequestService
	issuance *IssuanceService
	metrics  *metrics.Metrics
}

type envOption func(*envSettings)

type envSettings struct {
	store       storage.Store
	wrap        func(*contentstore.MemoryStore) contentstore.Client
	transformer DocumentTransformer
	locker      issuancelock.Locker
	gateway     string
}

func withStore(s storage.Store) envOption {
	return func(o *envSettings) { o.store = s }
}

// withContent wraps the in-memory content store
func withContent(wrap func(*contentstore.MemoryStore) contentstore.Client) envOption {
	return func(o *envSettings) { o.wrap = wrap }
}

func withTransformer(t DocumentTransformer) envOption {
	return func(o *envSettings) { o.transformer = t }
}

func withLocker(l issuancelock.Locker) envOption {
	return func(o *envSettings) { o.locker = l }
}

func withGateway(g string) envOption {
	return func(o *envSettings) { o.gateway = g }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	mem := contentstore.NewMemoryStore()
	settings := envSettings{
		store:       memory.NewStore(),
		transformer: transform.NewTransformer(transform.DefaultOptions()),
		gateway:     testGateway,
	}
	for _, o := range opts {
		o(&settings)
	}

	var content contentstore.Client = mem
	if settings.wrap != nil {
		content = settings.wrap(mem)
	}

	m := metrics.New()
	requests := NewRequestService(settings.store, m, testLogger())
	return &testEnv{
		store:    settings.store,
		content:  mem,
		users:    NewUserService(settings.store, testConfig(), testLogger()),
		requests: requests,
		issuance: NewIssuanceService(requests, content, settings.transformer, settings.locker, settings.gateway, m, testLogger()),
		metrics:  m,
	}
}

func callerOf(u *domain.User) domain.Caller {
	return domain.Caller{UserID: u.ID, Role: u.Role, Wallet: u.WalletAddress}
}

func (e *testEnv) register(t *testing.T, role domain.Role, name string) *domain.User {
	t.Helper()
	user, _, err := e.users.Register(context.Background(), &domain.RegisterRequest{
		WalletAddress: nextWallet(),
		Name:          name,
		UserType:      string(role),
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createRequest(t *testing.T, student, org *domain.User) *domain.CertificateRequest {
	t.Helper()
	req, err := e.requests.Create(context.Background(), callerOf(student), &domain.CreateRequestInput{
		OrganizationID:   org.ID.String(),
		IssuanceAmount:   "0",
		USN:              "1RV20CS001",
		YearOfGraduation: 2024,
		CertificateType:  "degree",
	})
	require.NoError(t, err)
	return req
}

func (e *testEnv) acceptedRequest(t *testing.T) (*domain.User, *domain.User, *domain.CertificateRequest) {
	t.Helper()
	student := e.register(t, domain.RoleStudent, "Asha")
	org := e.register(t, domain.RoleOrganization, "RV College")
	req := e.createRequest(t, student, org)
	_, err := e.requests.SetStatus(context.Background(), callerOf(org), req.ID, &domain.UpdateStatusInput{Status: domain.StatusAccepted})
	require.NoError(t, err)
	return student, org, req
}

// failingContent fails the nth upload (1-based) and delegates the rest
type failingContent struct {
	inner  contentstore.Client
	failAt int
	calls  atomic.Int32
}

func (f *failingContent) Upload(ctx context.Context, u contentstore.Upload) (*contentstore.Result, error) {
	n := int(f.calls.Add(1))
	if n == f.failAt {
		return nil, fmt.Errorf("%w: pinning service unavailable", contentstore.ErrUploadFailed)
	}
	return f.inner.Upload(ctx, u)
}

// barrierContent holds final uploads until n callers have reached them
type barrierContent struct {
	inner   contentstore.Client
	barrier sync.WaitGroup
}

func newBarrierContent(inner contentstore.Client, n int) *barrierContent {
	b := &barrierContent{inner: inner}
	b.barrier.Add(n)
	return b
}

func (b *barrierContent) Upload(ctx context.Context, u contentstore.Upload) (*contentstore.Result, error) {
	if u.KeyValues["type"] == "embedded_certificate_final" {
		b.barrier.Done()
		done := make(chan struct{})
		go func() { b.barrier.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("%w: barrier timeout", contentstore.ErrUploadFailed)
		}
	}
	return b.inner.Upload(ctx, u)
}

// nonceTransformer appends a unique suffix so each run yields a distinct document
type nonceTransformer struct {
	n atomic.Int32
}

func (t *nonceTransformer) EmbedVerificationCode(doc []byte, payload string) ([]byte, error) {
	out := append([]byte(nil), doc...)
	return append(out, []byte(fmt.Sprintf("\n%%%s #%d", payload, t.n.Add(1)))...), nil
}

// flakyRequests fails MarkIssued while failing is set
type flakyRequests struct {
	storage.RequestStore
	failing atomic.Bool
}

func (f *flakyRequests) MarkIssued(ctx context.Context, id domain.RequestID, contentID string, issuedAt time.Time) (*domain.CertificateRequest, error) {
	if f.failing.Load() {
		return nil, fmt.Errorf("%w: connection reset", storage.ErrDatabase)
	}
	return f.RequestStore.MarkIssued(ctx, id, contentID, issuedAt)
}

// flakyStore swaps in flakyRequests and a failing organization store
type flakyStore struct {
	storage.Store
	requests *flakyRequests
	orgs     storage.OrganizationStore
}

func newFlakyStore() *flakyStore {
	inner := memory.NewStore()
	return &flakyStore{Store: inner, requests: &flakyRequests{RequestStore: inner.Requests()}}
}

func (s *flakyStore) Requests() storage.RequestStore { return s.requests }

func (s *flakyStore) Organizations() storage.OrganizationStore {
	if s.orgs != nil {
		return s.orgs
	}
	return s.Store.Organizations()
}

type failingOrganizations struct{}

func (failingOrganizations) Create(ctx context.Context, org *domain.Organization) error {
	return fmt.Errorf("%w: write timeout", storage.ErrDatabase)
}

func (failingOrganizations) GetByUserID(ctx context.Context, userID domain.UserID) (*domain.Organization, error) {
	return nil, storage.ErrNotFound
}
