// Package store is a client for the HTTP key-value API which OCR results are
// persisted to. Every request carries the API password in its JSON body.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var log = logger.Get("Store")

const (
	getPath    = "/get/"
	setPath    = "/set/"
	dbSizePath = "/dbsize/"

	defaultTimeout = 30 * time.Second
)

type (
	Config struct {
		Domain   string        `yaml:"domain" env:"REDIS_API_DOMAIN"`
		Scheme   string        `yaml:"scheme" env:"REDIS_API_SCHEME" env-default:"https" validate:"oneof=http https"`
		Password string        `yaml:"password" env:"REDIS_API_PASSWORD"`
		DB       int           `yaml:"db" env:"REDIS_DB" env-default:"1" validate:"gte=0"`
		Timeout  time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
	}

	// Client talks to the store API. A Client is safe for concurrent use.
	Client struct {
		baseURL  string
		password string
		db       int
		http     *http.Client
	}

	keyRequest struct {
		Key      string `json:"key"`
		DB       int    `json:"db"`
		Password string `json:"password"`
	}

	setRequest struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		DB       int    `json:"db"`
		Password string `json:"password"`
	}

	sizeRequest struct {
		Password string `json:"password"`
	}

	sizeResponse struct {
		DBSize int64 `json:"dbsize"`
	}

	getResponse struct {
		Value *string `json:"value"`
	}
)

// BaseURL returns the root URL of the store API described by this config.
func (config Config) BaseURL() string {
	scheme := config.Scheme
	if scheme == "" {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s", scheme, strings.TrimSuffix(config.Domain, "/"))
}

func New(config Config) *Client {
	return NewWithHTTPClient(config.BaseURL(), config, &http.Client{Timeout: timeoutOrDefault(config.Timeout)})
}

// NewWithHTTPClient constructs a client against an explicit base URL using
// the HTTP client given. The domain and scheme in the config are ignored.
func NewWithHTTPClient(baseURL string, config Config, httpClient *http.Client) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		password: config.Password,
		db:       config.DB,
		http:     httpClient,
	}
}

// Exists reports whether a value is stored against the key. A 404 from the API
// means the key is absent; any other non-200 status is returned as an error.
func (client *Client) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := client.do(ctx, http.MethodGet, getPath, keyRequest{key, client.db, client.password})
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, newRequestError(getPath, resp)
	}
}

// Get returns the value stored against the key. The boolean is false when
// the key is absent.
func (client *Client) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := client.do(ctx, http.MethodGet, getPath, keyRequest{key, client.db, client.password})
	if err != nil {
		return "", false, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, newRequestError(getPath, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded getResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Value != nil {
		return *decoded.Value, true, nil
	}

	// Not every deployment of the API wraps the value in an object.
	var raw string
	if err := json.Unmarshal(body, &raw); err == nil {
		return raw, true, nil
	}

	return string(body), true, nil
}

// Set stores the value against the key, replacing any existing value.
func (client *Client) Set(ctx context.Context, key string, value string) error {
	resp, err := client.do(ctx, http.MethodPost, setPath, setRequest{key, value, client.db, client.password})
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return newRequestError(setPath, resp)
	}

	return nil
}

// Size returns the number of entries held by the store.
func (client *Client) Size(ctx context.Context) (int64, error) {
	resp, err := client.do(ctx, http.MethodGet, dbSizePath, sizeRequest{client.password})
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return 0, newRequestError(dbSizePath, resp)
	}

	var size sizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&size); err != nil {
		return 0, fmt.Errorf("failed to decode %s response: %w", dbSizePath, err)
	}

	return size.DBSize, nil
}

// do performs a request with a JSON body. The API expects a body even on
// GET requests.
func (client *Client) do(ctx context.Context, method string, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s request: %w", path, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.http.Do(req)
	if err != nil {
		log.Emit(logger.DEBUG, "%s %s failed: %v\n", method, path, err)
		return nil, &UnavailableError{path: path, err: err}
	}

	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultTimeout
	}

	return timeout
}
