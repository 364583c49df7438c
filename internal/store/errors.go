package store

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

type (
	// RequestError is returned when the store API responds with an
	// unexpected status code.
	RequestError struct {
		path       string
		StatusCode int
		message    string
	}

	// UnavailableError is returned when the store API could not be reached.
	UnavailableError struct {
		path string
		err  error
	}
)

func newRequestError(path string, resp *http.Response) *RequestError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &RequestError{path: path, StatusCode: resp.StatusCode, message: strings.TrimSpace(string(body))}
}

func (err *RequestError) Error() string {
	if err.message == "" {
		return fmt.Sprintf("store request %s failed (HTTP %d)", err.path, err.StatusCode)
	}

	return fmt.Sprintf("store request %s failed (HTTP %d): %s", err.path, err.StatusCode, err.message)
}

func (err *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable for %s: %s", err.path, err.err)
}

func (err *UnavailableError) Unwrap() error { return err.err }
