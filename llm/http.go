package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 120 * time.Second

// postJSON sends payload and returns the open response. Any status of 400 or
// above is turned into an error carrying the response body.
func postJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", provider, err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s API: %w", provider, err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return nil, fmt.Errorf("%s API error (%s): %s", provider, resp.Status, msg)
	}
	return nil, fmt.Errorf("%s API returned status %s", provider, resp.Status)
}
