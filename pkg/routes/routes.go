package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/openletter/api/pkg/database"
	"github.com/openletter/api/pkg/mail"
	"github.com/openletter/api/pkg/metrics"
	"github.com/openletter/api/pkg/models"
)

// SignatureStore is the persistence the signature routes need.
type SignatureStore interface {
	Create(ctx context.Context, sig *database.Signature) error
	Delete(ctx context.Context, id string) error
	FindByToken(ctx context.Context, token string) (*database.Signature, error)
	MarkVerified(ctx context.Context, token string) error
	ListVerified(ctx context.Context) ([]database.Signatory, error)
	CountVerified(ctx context.Context) (int64, error)
}

type Mailer interface {
	Configured() bool
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// SignatoryCache caches the public listing. Get returns a nil listing on a
// miss along with the generation that Set must be called with.
type SignatoryCache interface {
	Get(ctx context.Context) ([]database.Signatory, int64, error)
	Set(ctx context.Context, generation int64, signatories []database.Signatory) error
	Invalidate(ctx context.Context) error
}

type Options struct {
	// VerifyURL is the absolute URL of the verification endpoint; the token
	// is appended as a query parameter.
	VerifyURL string
	// ReturnURL is where verification pages send the signer afterwards.
	ReturnURL     string
	LetterTitle   string
	ExposeDetails bool
}

type SignatureRoutes struct {
	store   SignatureStore
	mailer  Mailer
	cache   SignatoryCache
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSignatureRoutes wires the handlers. cache may be nil to disable
// listing caching.
func NewSignatureRoutes(
	store SignatureStore,
	mailer Mailer,
	cache SignatoryCache,
	opts Options,
	logger *zap.Logger,
	m *metrics.Metrics,
) *SignatureRoutes {
	if opts.ReturnURL == "" {
		opts.ReturnURL = "/"
	}

	return &SignatureRoutes{
		store:   store,
		mailer:  mailer,
		cache:   cache,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

func (sr SignatureRoutes) Routes() chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(methodNotAllowed)

	r.Post("/signatures", sr.Submit)
	r.Get("/verify", sr.Verify)
	r.Get("/signatories", sr.ListSignatories)
	r.Get("/stats", sr.Stats)

	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusMethodNotAllowed, models.CreateError("Method not allowed"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeRaw(w, status, b)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func (sr SignatureRoutes) writeError(w http.ResponseWriter, status int, msg, details string) {
	if !sr.opts.ExposeDetails {
		details = ""
	}

	writeRaw(w, status, models.CreateErrorWithDetails(msg, details))
}
