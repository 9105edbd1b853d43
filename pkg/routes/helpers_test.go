package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openletter/api/pkg/database"
	"github.com/openletter/api/pkg/mail"
	"github.com/openletter/api/pkg/metrics"
)

const testVerifyURL = "https://letter.example.org/api/verify"

var tokenPattern = regexp.MustCompile(`token=([0-9a-f-]{36})`)

type fakeMailer struct {
	configured bool
	id         string
	err        error
	sent       []mail.Message
}

func (m *fakeMailer) Configured() bool {
	return m.configured
}

func (m *fakeMailer) Send(ctx context.Context, msg mail.Message) (string, error) {
	m.sent = append(m.sent, msg)
	return m.id, m.err
}

// testStore wraps the real store so individual operations can be failed.
type testStore struct {
	*database.SignatureStore

	createErr error
	deleteErr error
	findErr   error
	markErr   error
	listErr   error
	countErr  error

	createPanic bool
	findPanic   bool

	// afterList runs once ListVerified has read the rows.
	afterList func()

	markCalls int
}

func (s *testStore) Create(ctx context.Context, sig *database.Signature) error {
	if s.createPanic {
		panic("nil connection pool")
	}
	if s.createErr != nil {
		return s.createErr
	}
	return s.SignatureStore.Create(ctx, sig)
}

func (s *testStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.SignatureStore.Delete(ctx, id)
}

func (s *testStore) FindByToken(ctx context.Context, token string) (*database.Signature, error) {
	if s.findPanic {
		panic("nil connection pool")
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.SignatureStore.FindByToken(ctx, token)
}

func (s *testStore) MarkVerified(ctx context.Context, token string) error {
	s.markCalls++
	if s.markErr != nil {
		return s.markErr
	}
	return s.SignatureStore.MarkVerified(ctx, token)
}

func (s *testStore) ListVerified(ctx context.Context) ([]database.Signatory, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	list, err := s.SignatureStore.ListVerified(ctx)
	if s.afterList != nil {
		s.afterList()
	}
	return list, err
}

func (s *testStore) CountVerified(ctx context.Context) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.SignatureStore.CountVerified(ctx)
}

type harness struct {
	t       *testing.T
	db      *gorm.DB
	store   *testStore
	mailer  *fakeMailer
	metrics *metrics.Metrics
	handler http.Handler
}

type harnessOption func(*Options, *SignatoryCache)

func withDetails() harnessOption {
	return func(o *Options, _ *SignatoryCache) {
		o.ExposeDetails = true
	}
}

func withCache(c SignatoryCache) harnessOption {
	return func(_ *Options, sc *SignatoryCache) {
		*sc = c
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := d.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(d))

	o := Options{
		VerifyURL:   testVerifyURL,
		ReturnURL:   "https://letter.example.org/",
		LetterTitle: "the open letter",
	}
	var cache SignatoryCache
	for _, opt := range opts {
		opt(&o, &cache)
	}

	h := &harness{
		t:       t,
		db:      d,
		store:   &testStore{SignatureStore: database.NewSignatureStore(d)},
		mailer:  &fakeMailer{configured: true, id: "em_123"},
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	sr := NewSignatureRoutes(h.store, h.mailer, cache, o, zap.NewNop(), h.metrics)

	r := chi.NewRouter()
	r.Mount("/api", sr.Routes())
	h.handler = r

	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	return rec
}

func (h *harness) rowCount() int64 {
	h.t.Helper()

	var n int64
	require.NoError(h.t, h.db.Model(&database.Signature{}).Count(&n).Error)

	return n
}

// lastToken extracts the token from the most recent verification email.
func (h *harness) lastToken() string {
	h.t.Helper()

	require.NotEmpty(h.t, h.mailer.sent)
	m := tokenPattern.FindStringSubmatch(h.mailer.sent[len(h.mailer.sent)-1].HTML)
	require.Len(h.t, m, 2)

	return m[1]
}
