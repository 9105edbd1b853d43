package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	tyderrors "github.com/openletter/api/pkg/errors"
)

const DefaultBaseURL = "https://api.resend.com"

type Message struct {
	To      string
	Subject string
	HTML    string
}

// APIError is a non-2xx reply from the delivery provider.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("email provider responded with status %d", e.StatusCode)
	}

	return fmt.Sprintf("email provider responded with status %d: %s", e.StatusCode, e.Message)
}

// Client sends email through the Resend HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	from       string
	configured bool
}

func NewClient(apiKey, from, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})

	return &Client{
		httpClient: oauth2.NewClient(context.Background(), src),
		baseURL:    strings.TrimRight(baseURL, "/"),
		from:       from,
		configured: apiKey != "" && from != "",
	}
}

// Configured reports whether both an API key and a sender address are set.
func (c *Client) Configured() bool {
	return c.configured
}

// Send delivers msg and returns the provider's delivery id. A nil error with
// an empty id means the provider accepted the request without confirming it.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.configured {
		return "", tyderrors.ErrNotConfigured
	}

	payload := struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}

	pl, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewBuffer(pl))
	if err != nil {
		return "", fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer res.Body.Close()

	bdy, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read email response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{}
		if err := json.Unmarshal(bdy, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(bdy))
		}
		apiErr.StatusCode = res.StatusCode

		return "", apiErr
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(bdy, &body); err != nil {
		return "", fmt.Errorf("decode email response: %w", err)
	}

	return body.ID, nil
}
