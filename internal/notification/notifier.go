package notification

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

const notifyPath = "/notify"

type (
	// Summary is the body POSTed to the notification endpoint every cycle.
	Summary struct {
		ProcessedVideos      int64 `json:"processed_videos_count"`
		TotalVideos          int64 `json:"total_videos_count"`
		TotalProcessedVideos int64 `json:"total_processed_videos"`
	}

	// HTTPNotifier delivers summaries to the notification API.
	HTTPNotifier struct {
		url  string
		http *http.Client
	}
)

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	return NewHTTPNotifierWithClient(baseURL, &http.Client{Timeout: timeout})
}

func NewHTTPNotifierWithClient(baseURL string, client *http.Client) *HTTPNotifier {
	return &HTTPNotifier{url: strings.TrimSuffix(baseURL, "/") + notifyPath, http: client}
}

// Notify POSTs the summary. Any status other than 200 is an error.
func (notifier *HTTPNotifier) Notify(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifier.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to construct notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := notifier.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification rejected (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
