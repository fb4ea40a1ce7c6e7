package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDoReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		require.Equal(t, "value", r.Header.Get("X-Custom"))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer ts.Close()

	client := NewClient(DefaultClientOpts, zap.NewNop())
	body, _, err := client.Do(context.Background(), "GET", ts.URL, map[string]string{"X-Custom": "value"}, nil)
	require.NoError(t, err)
	require.Equal(t, `{"ok": true}`, string(body))
}

func TestDoStatusErrorKeepsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer ts.Close()

	client := NewClient(DefaultClientOpts, zap.NewNop())
	body, _, err := client.Do(context.Background(), "GET", ts.URL, nil, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	// The body survives so callers can extract upstream error messages
	require.Equal(t, `{"error": "rate limit"}`, string(body))
}

func TestDoTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	client := NewClient(ClientOptions{Timeout: 20 * time.Millisecond}, zap.NewNop())
	_, _, err := client.Do(context.Background(), "GET", ts.URL, nil, nil)
	require.True(t, errors.Is(err, ErrTimeout))
}

func TestHeadReturnsFinalURL(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "HEAD", r.Method)
	}))
	defer final.Close()
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/file.mkv", http.StatusFound)
	}))
	defer redirecting.Close()

	client := NewClient(DefaultClientOpts, zap.NewNop())
	finalURL, err := client.Head(context.Background(), redirecting.URL, nil)
	require.NoError(t, err)
	require.Equal(t, final.URL+"/file.mkv", finalURL)
}

func TestWarmRangeSendsRangeHeader(t *testing.T) {
	var gotRange string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
	}))
	defer ts.Close()

	client := NewClient(DefaultClientOpts, zap.NewNop())
	client.WarmRange(context.Background(), ts.URL)
	require.Equal(t, "bytes=0-0", gotRange)
}
