package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/openletter/api/pkg/database"
	tyderrors "github.com/openletter/api/pkg/errors"
	"github.com/openletter/api/pkg/mail"
	"github.com/openletter/api/pkg/metrics"
)

const (
	msgSubmitted     = "Signature submitted successfully. Please check your email to verify."
	msgBadPayload    = "Failed to parse JSON payload"
	msgMissingFields = "Name and email are required"
	msgInvalidEmail  = "Invalid email format"
	msgNotConfigured = "Email service is not configured. Please contact the administrator."
	msgSaveFailed    = "Failed to save signature"
	msgSendFailed    = "Failed to send verification email. Please try again or contact support if the problem persists."
	msgSendUnclear   = "Email sending status unclear. Please try again or contact support."
	msgInternal      = "Internal server error"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type SubmitPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	JobTitle    string `json:"jobTitle"`
	Affiliation string `json:"affiliation"`
}

type SubmitResponse struct {
	Message string              `json:"message"`
	Data    *database.Signature `json:"data"`
}

func (sr SignatureRoutes) Submit(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			sr.logger.Error("panic while processing signature", zap.Any("panic", rec), zap.Stack("stack"))
			sr.writeError(w, http.StatusInternalServerError, msgInternal, "")
		}
	}()

	var body SubmitPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		sr.writeError(w, http.StatusBadRequest, msgBadPayload, "")
		return
	}

	sig, errMsg := body.signature()
	if errMsg != "" {
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		sr.writeError(w, http.StatusBadRequest, errMsg, "")
		return
	}

	// Without a way to send the link the row could never be verified, so
	// refuse before inserting anything.
	if !sr.mailer.Configured() {
		sr.logger.Error("email service is not configured, rejecting signature")
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
		sr.writeError(w, http.StatusInternalServerError, msgNotConfigured, "")
		return
	}

	ctx := r.Context()

	if err := sr.store.Create(ctx, sig); err != nil {
		if errors.Is(err, tyderrors.ErrDuplicate) {
			sr.logger.Info("rejected duplicate signature", zap.Error(err))
		} else {
			sr.logger.Error("failed to create signature", zap.Error(err))
		}

		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeStoreError).Inc()
		sr.writeError(w, http.StatusInternalServerError, msgSaveFailed, err.Error())
		return
	}

	log := sr.logger.With(zap.String("signature_id", sig.ID))

	msg, err := mail.VerificationMessage(sig.Email, sig.Name, sr.opts.LetterTitle, sr.verificationURL(sig.VerificationToken))
	if err != nil {
		log.Error("failed to render verification email", zap.Error(err))
		sr.compensate(ctx, sig)
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeSendFailed).Inc()
		sr.writeError(w, http.StatusInternalServerError, msgSendFailed, err.Error())
		return
	}

	emailID, err := sr.mailer.Send(ctx, msg)
	if err != nil {
		sr.compensate(ctx, sig)

		if errors.Is(err, tyderrors.ErrNotConfigured) {
			log.Error("email service is not configured", zap.Error(err))
			sr.metrics.Submissions.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
			sr.writeError(w, http.StatusInternalServerError, msgNotConfigured, "")
			return
		}

		log.Error("failed to send verification email", zap.Error(err))
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeSendFailed).Inc()
		sr.writeError(w, http.StatusInternalServerError, msgSendFailed, err.Error())
		return
	}

	if emailID == "" {
		log.Error("email provider returned no delivery id")
		sr.compensate(ctx, sig)
		sr.metrics.Submissions.WithLabelValues(metrics.OutcomeSendUnclear).Inc()
		sr.writeError(w, http.StatusInternalServerError, msgSendUnclear, "No email ID returned from the email provider")
		return
	}

	log.Info("verification email sent", zap.String("email_id", emailID))
	sr.metrics.Submissions.WithLabelValues(metrics.OutcomeSubmitted).Inc()

	writeJSON(w, http.StatusOK, SubmitResponse{
		Message: msgSubmitted,
		Data:    sig,
	})
}

// compensate removes a signature created in this request whose verification
// email was not confirmed sent. Failures are logged only; the caller has
// already picked the response.
func (sr SignatureRoutes) compensate(ctx context.Context, sig *database.Signature) {
	ctx = context.WithoutCancel(ctx)

	if err := sr.store.Delete(ctx, sig.ID); err != nil {
		sr.logger.Error("failed to delete unverifiable signature",
			zap.String("signature_id", sig.ID),
			zap.Error(err),
		)
		sr.metrics.Compensations.WithLabelValues("failed").Inc()
		return
	}

	sr.metrics.Compensations.WithLabelValues("deleted").Inc()
}

func (sr SignatureRoutes) verificationURL(token string) string {
	return sr.opts.VerifyURL + "?" + url.Values{"token": {token}}.Encode()
}

// signature validates and normalizes the payload. A non-empty string is the
// client-facing validation error.
func (p SubmitPayload) signature() (*database.Signature, string) {
	name := strings.TrimSpace(p.Name)
	email := strings.ToLower(strings.TrimSpace(p.Email))

	if name == "" || email == "" {
		return nil, msgMissingFields
	}

	if !emailPattern.MatchString(email) {
		return nil, msgInvalidEmail
	}

	return &database.Signature{
		Name:        name,
		Email:       email,
		JobTitle:    optional(p.JobTitle),
		Affiliation: optional(p.Affiliation),
	}, ""
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return &s
}
