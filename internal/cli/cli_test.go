package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ankit-pn/video-ocr-service/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath, verbose, lookupRaw = "", false, false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func Test_ScanListsEligibleVideos(t *testing.T) {
	root, _ := helpers.TempDirWithFiles(t, []string{"intro.mp4", "nested/Lecture.MP4", "notes.txt"})
	config := writeConfig(t, fmt.Sprintf("ingest:\n  path: %s\n  extensions: [\".mp4\"]\n", root))

	out, err := execute(t, "scan", "--config", config)
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join(root, "intro.mp4"))
	assert.Contains(t, out, filepath.Join(root, "nested", "Lecture.MP4"))
	assert.NotContains(t, out, "notes.txt")
	assert.Contains(t, out, "2 eligible videos")
}

func Test_LookupPrintsStoredValue(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path == "/get/" && body["key"] == "lecture01" {
			_ = json.NewEncoder(w).Encode(map[string]string{"value": "Hello World"})
			return
		}

		http.NotFound(w, r)
	}))
	defer api.Close()

	config := writeConfig(t, fmt.Sprintf("ingest:\n  path: %s\nstore:\n  domain: %s\n  scheme: http\n",
		t.TempDir(), strings.TrimPrefix(api.URL, "http://")))

	out, err := execute(t, "lookup", "--config", config, "/videos/lecture01.mp4")
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", out)

	_, err = execute(t, "lookup", "--config", config, "missing")
	assert.ErrorContains(t, err, "no result stored for missing")
}

func Test_LookupRequiresStore(t *testing.T) {
	config := writeConfig(t, fmt.Sprintf("ingest:\n  path: %s\n", t.TempDir()))

	_, err := execute(t, "lookup", "--config", config, "anything")
	assert.ErrorContains(t, err, "REDIS_API_DOMAIN")
}

func Test_InvalidConfigIsRejected(t *testing.T) {
	config := writeConfig(t, fmt.Sprintf("ingest:\n  path: %s\nlog_level: loud\n", t.TempDir()))

	_, err := execute(t, "scan", "--config", config)
	assert.ErrorContains(t, err, "load config")
}
