// Package provider implements the external image models behind the
// primary and secondary acquisition tiers.
//
// Every provider satisfies imagegen.Backend and returns PNG bytes already
// normalised by image.Normalize, so the engine and transport never see the
// upstream format. Transport failures are classified into a small set of
// sentinel errors; the engine only logs them before falling through.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	vizimage "github.com/hurricanerix/vizzy/internal/image"
)

var tracer = otel.Tracer("github.com/hurricanerix/vizzy/internal/provider")

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 1024

// Sentinel errors for provider operations
var (
	// ErrTimeout is returned when the upstream did not answer in time
	ErrTimeout = errors.New("image provider timeout")
	// ErrUnavailable is returned when the upstream refused the connection
	ErrUnavailable = errors.New("image provider unavailable")
	// ErrRequestFailed is returned for non-success HTTP statuses
	ErrRequestFailed = errors.New("image provider request failed")
	// ErrBadResponse is returned when the reply cannot be decoded
	ErrBadResponse = errors.New("image provider returned a bad response")
	// ErrMissingCredentials is returned when a provider has no API key
	ErrMissingCredentials = errors.New("image provider credentials are not configured")
)

// newHTTPClient returns a traced client. Timeouts come from the request
// context set by the retry policy.
func newHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// statusError reads at most maxErrorBody bytes of a failed response.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%w: status %d (failed to read error: %v)", ErrRequestFailed, resp.StatusCode, err)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
}

// classifyError converts low-level HTTP errors into provider errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) && syscallErr == syscall.ECONNREFUSED {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// normalize converts every image to bounded PNG. Any undecodable image
// fails the whole call so the engine can fall through.
func normalize(images [][]byte) ([][]byte, error) {
	out := make([][]byte, 0, len(images))
	for i, data := range images {
		img, err := vizimage.Normalize(data)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrBadResponse, i, err)
		}
		out = append(out, img)
	}
	return out, nil
}
