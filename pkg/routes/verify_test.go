package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openletter/api/pkg/metrics"
)

func (h *harness) submit(body string) string {
	h.t.Helper()

	rec := h.do(http.MethodPost, "/api/signatures", body)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	return h.lastToken()
}

func TestVerifyMissingToken(t *testing.T) {
	h := newHarness(t)
	h.store.findErr = errors.New("store must not be touched")

	rec := h.do(http.MethodGet, "/api/verify", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Invalid Verification Link")
}

func TestVerifyUnknownToken(t *testing.T) {
	h := newHarness(t)
	token := h.submit(adaPayload)

	for _, tok := range []string{"nope", token[:8], token + "0"} {
		rec := h.do(http.MethodGet, "/api/verify?token="+tok, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "This verification link is invalid or has already been used.")
	}

	assert.Zero(t, h.store.markCalls)
}

func TestVerifyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	token := h.submit(adaPayload)

	rec := h.do(http.MethodGet, "/api/verify?token="+token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signature Verified!")
	assert.Contains(t, body, "Thank you, Ada Lovelace!")
	assert.Contains(t, body, `<meta http-equiv="refresh" content="3;url=https://letter.example.org/" />`)

	rec = h.do(http.MethodGet, "/api/verify?token="+token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Already Verified")
	assert.NotContains(t, rec.Body.String(), "refresh")

	assert.Equal(t, 1, h.store.markCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Verifications.WithLabelValues(metrics.OutcomeVerified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Verifications.WithLabelValues(metrics.OutcomeAlreadyVerified)))
}

func TestVerifyEscapesName(t *testing.T) {
	h := newHarness(t)
	token := h.submit(`{"name":"<script>alert(1)</script>","email":"x@example.com"}`)

	rec := h.do(http.MethodGet, "/api/verify?token="+token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestVerifyUpdateFailureLeavesRowUnverified(t *testing.T) {
	h := newHarness(t)
	token := h.submit(adaPayload)
	h.store.markErr = errors.New("deadlock detected")

	rec := h.do(http.MethodGet, "/api/verify?token="+token, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Verification Error")

	sig, err := h.store.FindByToken(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, sig.Verified)

	h.store.markErr = nil
	rec = h.do(http.MethodGet, "/api/verify?token="+token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signature Verified!")
}

func TestVerifyLookupFailure(t *testing.T) {
	h := newHarness(t)
	h.store.findErr = errors.New("connection refused")

	rec := h.do(http.MethodGet, "/api/verify?token=abc", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestVerifyStorePanic(t *testing.T) {
	h := newHarness(t)
	h.store.findPanic = true

	rec := h.do(http.MethodGet, "/api/verify?token=abc", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Verifications.WithLabelValues(metrics.OutcomeError)))
}

func TestVerifyStorePanicOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.store.findPanic = true

	r := chi.NewRouter()
	r.Use(Recoverer(zap.NewNop()))
	r.Mount("/", h.handler)

	srv := httptest.NewServer(r)
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/api/verify?token=abc")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Internal Server Error")
}
