package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry(next Lookup) *RetryingLookup {
	r := NewRetryingLookup(next)
	r.Initial = time.Millisecond
	r.Timeout = time.Second
	return r
}

func TestRetryingLookupGivesUpAfterThreeRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	r := fastRetry(NewWebLookup(srv.URL))
	require.Equal(t, 4, r.MaxAttempts)
	out := r.Summarize(context.Background(), "ACME WIDGETS")
	require.Contains(t, out, "Lookup failed")
	require.Contains(t, out, "4 attempts")
	require.Equal(t, int32(4), hits.Load())
}

func TestRetryingLookupRecovers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("q") != "blue bottle coffee" || r.URL.Query().Get("format") != "json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Heading":"Blue Bottle Coffee","AbstractText":"Blue Bottle Coffee is a coffee roaster and retailer."}`)
	}))
	t.Cleanup(srv.Close)

	out := fastRetry(NewWebLookup(srv.URL)).Summarize(context.Background(), "blue bottle coffee")
	require.Equal(t, "Blue Bottle Coffee. Blue Bottle Coffee is a coffee roaster and retailer.", out)
	require.Equal(t, int32(2), hits.Load())
}

func TestRetryingLookupClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	out := fastRetry(NewWebLookup(srv.URL)).Summarize(context.Background(), "x")
	require.Contains(t, out, "Lookup failed")
	require.Equal(t, int32(1), hits.Load())
}

func TestWebLookupSummaries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "related":
			fmt.Fprint(w, `{"RelatedTopics":[{"Text":"one"},{"Text":""},{"Text":"two"},{"Text":"three"},{"Text":"four"}]}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))
	t.Cleanup(srv.Close)

	w := NewWebLookup(srv.URL)
	out, err := w.Lookup(context.Background(), "related")
	require.NoError(t, err)
	require.Equal(t, "one two three", out)

	out, err = w.Lookup(context.Background(), "nothing")
	require.NoError(t, err)
	require.Equal(t, `No results found for "nothing".`, out)
}

func TestLookupToolReadsQueryArg(t *testing.T) {
	t.Parallel()

	r := fastRetry(lookupFunc(func(_ context.Context, q string) (string, error) { return "found " + q, nil }))
	decl, fn := r.Tool()
	require.Equal(t, "web_lookup", decl.Name)
	require.Equal(t, "query", decl.Param)
	require.Equal(t, "found shell", fn(context.Background(), map[string]any{"query": "shell"}))
	require.Contains(t, fn(context.Background(), map[string]any{}), "empty query")
}

type lookupFunc func(ctx context.Context, q string) (string, error)

func (f lookupFunc) Lookup(ctx context.Context, q string) (string, error) { return f(ctx, q) }
