package artifact

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
)

// Fetcher downloads build artifacts from the CI system over HTTP.
// Every attempt is time-bounded: a download exceeding the configured
// timeout fails with ErrFetchTimeout instead of blocking.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	l       *zap.Logger
}

// FetcherOption configures the fetcher
type FetcherOption func(*Fetcher)

// FetchTimeout bounds one download attempt
func FetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// FetcherLogger sets a logger
func FetcherLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.l = l
		}
	}
}

// HTTPClient overrides the http client (used by tests)
func HTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher creates an artifact fetcher
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  http.DefaultClient,
		timeout: 10 * time.Minute,
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(f)
	}
	return f
}

// Fetch streams the artifact at the given URL. The returned reader must
// be consumed before the attempt timeout elapses; the caller owns
// closing it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, status.ErrFetchFailed.Wrap(err)
	}

	f.l.Info("downloading artifact", zap.String("url", rawURL))
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, classifyFetchError(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, status.ErrFetchFailed.WrapMessage("unexpected status %s", resp.Status)
	}
	return resp.Body, cancel, nil
}

func classifyFetchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return status.ErrFetchTimeout.Wrap(err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return status.ErrFetchTimeout.Wrap(err)
	}
	return status.ErrFetchFailed.Wrap(err)
}
