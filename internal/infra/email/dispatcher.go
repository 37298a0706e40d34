package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"risehigh-xp-service/internal/domain"
)

// HTTPDispatcher posts closed challenges to the email service.
type HTTPDispatcher struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPDispatcher targets the email endpoint at url, e.g.
// "https://project.functions.example/send-challenge-email".
func NewHTTPDispatcher(url, apiKey string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDispatcher) DispatchChallengeEmail(ctx context.Context, payload domain.ChallengeEmail) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode challenge email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", d.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("POST %s: %d %s", d.url, resp.StatusCode, string(body))
	}
	return nil
}
