package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ankit-pn/video-ocr-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory implementation of the store HTTP API.
type fakeAPI struct {
	sync.Mutex
	password string
	values   map[string]string
	failSet  bool
	requests []map[string]any
}

func (api *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.Lock()
	defer api.Unlock()

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	api.requests = append(api.requests, body)

	if r.Header.Get("Content-Type") != "application/json" || body["password"] != api.password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/get/":
		value, ok := api.values[body["key"].(string)]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": value})
	case r.Method == http.MethodPost && r.URL.Path == "/set/":
		if api.failSet {
			http.Error(w, "read only", http.StatusServiceUnavailable)
			return
		}
		api.values[body["key"].(string)] = body["value"].(string)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	case r.Method == http.MethodGet && r.URL.Path == "/dbsize/":
		_ = json.NewEncoder(w).Encode(map[string]int{"dbsize": len(api.values)})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api http.Handler, password string) *store.Client {
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	return store.NewWithHTTPClient(server.URL, store.Config{Password: password, DB: 1}, server.Client())
}

func Test_SetThenExistsAndGet(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{password: "secret", values: map[string]string{}}
	client := newTestClient(t, api, "secret")
	ctx := context.Background()

	exists, err := client.Exists(ctx, "clip")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.Set(ctx, "clip", "hello world"))

	exists, err = client.Exists(ctx, "clip")
	require.NoError(t, err)
	assert.True(t, exists)

	value, ok, err := client.Get(ctx, "clip")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", value)

	size, err := client.Size(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	api.Lock()
	defer api.Unlock()
	assert.EqualValues(t, 1, api.requests[1]["db"])
	assert.Equal(t, "clip", api.requests[1]["key"])
}

func Test_GetAbsentKey(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, &fakeAPI{password: "pw", values: map[string]string{}}, "pw")

	value, ok, err := client.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func Test_UnexpectedStatusIsError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, &fakeAPI{password: "pw", values: map[string]string{}}, "wrong")

	_, err := client.Exists(context.Background(), "clip")
	var reqErr *store.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)

	_, err = client.Size(context.Background())
	assert.Error(t, err)
}

func Test_SetFailure(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, &fakeAPI{password: "pw", values: map[string]string{}, failSet: true}, "pw")

	err := client.Set(context.Background(), "clip", "text")
	var reqErr *store.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
}

func Test_UnreachableStore(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := store.NewWithHTTPClient(url, store.Config{}, http.DefaultClient)
	_, err := client.Exists(context.Background(), "clip")

	var unavailable *store.UnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func Test_GetRawValue(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"plain text"`))
	}), "")

	value, ok, err := client.Get(context.Background(), "clip")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plain text", value)
}

func Test_BaseURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://redis.example.com", store.Config{Domain: "redis.example.com"}.BaseURL())
	assert.Equal(t, "http://localhost:8080", store.Config{Domain: "localhost:8080/", Scheme: "http"}.BaseURL())
}
