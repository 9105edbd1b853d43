package routes

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	tyderrors "github.com/openletter/api/pkg/errors"
	"github.com/openletter/api/pkg/metrics"
)

const redirectSeconds = 3

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8" />
    <title>{{.Title}}</title>
    {{- if .Redirect}}
    <meta http-equiv="refresh" content="{{.RedirectSeconds}};url={{.ReturnURL}}" />
    {{- end}}
    <style>
      body { font-family: system-ui; max-width: 600px; margin: 100px auto; padding: 20px; text-align: center; }
      h1.error { color: #dc2626; }
      h1.info { color: #2563eb; }
      h1.success { color: #059669; }
      .checkmark { font-size: 64px; color: #059669; }
      a { color: #2563eb; text-decoration: none; }
      a:hover { text-decoration: underline; }
    </style>
  </head>
  <body>
    {{- if .Checkmark}}
    <div class="checkmark">&#10003;</div>
    {{- end}}
    <h1 class="{{.Tone}}">{{.Heading}}</h1>
    {{- range .Lines}}
    <p>{{.}}</p>
    {{- end}}
    {{- if .Redirect}}
    <p>Redirecting you back to the letter in {{.RedirectSeconds}} seconds...</p>
    <p><a href="{{.ReturnURL}}">Click here if you are not redirected automatically</a></p>
    {{- else if .ShowReturn}}
    <p><a href="{{.ReturnURL}}">Return to the open letter</a></p>
    {{- end}}
  </body>
</html>
`))

type page struct {
	Title           string
	Heading         string
	Tone            string
	Lines           []string
	Checkmark       bool
	Redirect        bool
	ShowReturn      bool
	RedirectSeconds int
	ReturnURL       string
}

var (
	pageInvalidLink = page{
		Title:   "Verification Failed",
		Heading: "Invalid Verification Link",
		Tone:    "error",
		Lines:   []string{"The verification link is missing or invalid."},
	}
	pageNotFound = page{
		Title:   "Verification Failed",
		Heading: "Verification Failed",
		Tone:    "error",
		Lines:   []string{"This verification link is invalid or has already been used."},
	}
	pageAlreadyVerified = page{
		Title:      "Already Verified",
		Heading:    "Already Verified",
		Tone:       "info",
		Lines:      []string{"Your signature has already been verified. Thank you for your support!"},
		ShowReturn: true,
	}
	pageUpdateFailed = page{
		Title:   "Verification Error",
		Heading: "Verification Error",
		Tone:    "error",
		Lines:   []string{"An error occurred while verifying your signature. Please try again later."},
	}
	pageInternalError = page{
		Title:   "Error",
		Heading: "Internal Server Error",
		Tone:    "error",
		Lines:   []string{"An unexpected error occurred. Please try again later."},
	}
)

func pageVerified(name string) page {
	return page{
		Title:     "Signature Verified",
		Heading:   "Signature Verified!",
		Tone:      "success",
		Checkmark: true,
		Redirect:  true,
		Lines: []string{
			fmt.Sprintf("Thank you, %s! Your signature has been verified and will now appear on the open letter.", name),
		},
	}
}

// Verify consumes the token from an emailed link and answers with an HTML
// page in every case.
func (sr SignatureRoutes) Verify(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			sr.logger.Error("panic while verifying signature", zap.Any("panic", rec), zap.Stack("stack"))
			sr.metrics.Verifications.WithLabelValues(metrics.OutcomeError).Inc()
			sr.renderPage(w, http.StatusInternalServerError, pageInternalError)
		}
	}()

	token := r.URL.Query().Get("token")
	if token == "" {
		sr.metrics.Verifications.WithLabelValues(metrics.OutcomeMissingToken).Inc()
		sr.renderPage(w, http.StatusBadRequest, pageInvalidLink)
		return
	}

	ctx := r.Context()

	sig, err := sr.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, tyderrors.ErrNotFound) {
			sr.metrics.Verifications.WithLabelValues(metrics.OutcomeUnknownToken).Inc()
			sr.renderPage(w, http.StatusNotFound, pageNotFound)
			return
		}

		sr.logger.Error("failed to look up verification token", zap.Error(err))
		sr.metrics.Verifications.WithLabelValues(metrics.OutcomeError).Inc()
		sr.renderPage(w, http.StatusInternalServerError, pageInternalError)
		return
	}

	if sig.Verified {
		sr.metrics.Verifications.WithLabelValues(metrics.OutcomeAlreadyVerified).Inc()
		sr.renderPage(w, http.StatusOK, pageAlreadyVerified)
		return
	}

	if err := sr.store.MarkVerified(ctx, token); err != nil {
		sr.logger.Error("failed to verify signature", zap.String("signature_id", sig.ID), zap.Error(err))
		sr.metrics.Verifications.WithLabelValues(metrics.OutcomeError).Inc()
		sr.renderPage(w, http.StatusInternalServerError, pageUpdateFailed)
		return
	}

	sr.logger.Info("signature verified", zap.String("signature_id", sig.ID))
	sr.metrics.Verifications.WithLabelValues(metrics.OutcomeVerified).Inc()

	if sr.cache != nil {
		if err := sr.cache.Invalidate(ctx); err != nil {
			sr.logger.Warn("failed to invalidate signatories cache", zap.Error(err))
		}
	}

	sr.renderPage(w, http.StatusOK, pageVerified(sig.Name))
}

func (sr SignatureRoutes) renderPage(w http.ResponseWriter, status int, p page) {
	p.ReturnURL = sr.opts.ReturnURL
	p.RedirectSeconds = redirectSeconds

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		sr.logger.Error("failed to render page", zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
