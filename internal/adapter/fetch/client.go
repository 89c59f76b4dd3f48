package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
)

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// errStalled reports a download that made no progress for the stall timeout.
var errStalled = errors.New("download stalled")

// Client downloads files over HTTP, retrying transient failures.
type Client struct {
	httpClient   *http.Client
	stallTimeout time.Duration
	attempts     uint
	delay        time.Duration
	logger       *slog.Logger
}

// NewClient creates a download client. stallTimeout bounds the wait for
// response headers and for each chunk of the body, not the whole transfer,
// so a large archive on a slow link still completes.
func NewClient(stallTimeout time.Duration, attempts int, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = stallTimeout
	return &Client{
		httpClient:   &http.Client{Transport: transport},
		stallTimeout: stallTimeout,
		attempts:     uint(attempts),
		delay:        time.Second,
		logger:       logger,
	}
}

// Download writes the body of url to dest and returns the number of bytes written.
// The file is written to a temporary name first so a failed attempt never leaves
// a truncated file at dest.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	var written int64
	err := retry.Do(
		func() error {
			n, err := c.download(ctx, url, dest)
			written = n
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying download", "url", url, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return 0, err
	}
	c.logger.Info("downloaded", "url", url, "path", dest, "bytes", written)
	return written, nil
}

func (c *Client) download(ctx context.Context, url, dest string) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	body := newStallReader(resp.Body, c.stallTimeout, func() { cancel(errStalled) })
	n, err := io.Copy(tmp, body)
	body.stop()
	if err != nil {
		tmp.Close()
		if cause := context.Cause(ctx); errors.Is(cause, errStalled) {
			return 0, fmt.Errorf("download %s: %w after %d bytes", url, errStalled, n)
		}
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move download into place: %w", err)
	}
	return n, nil
}

// retryable treats network errors and 5xx/429 responses as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// stallReader calls onStall when no bytes have been read for timeout.
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newStallReader(r io.Reader, timeout time.Duration, onStall func()) *stallReader {
	return &stallReader{r: r, timeout: timeout, timer: time.AfterFunc(timeout, onStall)}
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() {
	s.timer.Stop()
}
