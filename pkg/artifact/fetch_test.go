package artifact

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("artifact bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(HTTPClient(srv.Client()))
	body, cancel, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer cancel()
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "artifact bytes", string(b))
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(HTTPClient(srv.Client()))
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrFetchFailed))
}

func TestFetchTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	f := NewFetcher(HTTPClient(srv.Client()), FetchTimeout(50*time.Millisecond))
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrFetchTimeout))
}

func TestFetchConnectionRefused(t *testing.T) {
	f := NewFetcher()
	_, _, err := f.Fetch(context.Background(), "http://127.0.0.1:1/artifact.tar.gz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrFetchFailed))
}
