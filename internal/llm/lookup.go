package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jask/bookkeeper/internal/logger"
)

const (
	lookupToolName       = "web_lookup"
	maxRelatedTopics     = 3
	defaultLookupTries   = 4
	defaultLookupDelay   = 500 * time.Millisecond
	defaultLookupTimeout = 5 * time.Second
)

// Lookup answers a free-text query with a short summary.
type Lookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// WebLookup queries a DuckDuckGo-compatible instant answer endpoint.
type WebLookup struct {
	Endpoint string
	Client   *http.Client
}

func NewWebLookup(endpoint string) *WebLookup {
	return &WebLookup{Endpoint: endpoint, Client: &http.Client{}}
}

type instantAnswer struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

func (w *WebLookup) Lookup(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(w.Endpoint)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("lookup endpoint: %w", err))
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("lookup: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", backoff.Permanent(fmt.Errorf("lookup: status %d", resp.StatusCode))
	}

	var ans instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return "", fmt.Errorf("lookup: decode: %w", err)
	}
	return ans.summary(query), nil
}

func (a instantAnswer) summary(query string) string {
	var parts []string
	if a.Heading != "" {
		parts = append(parts, a.Heading+".")
	}
	if a.AbstractText != "" {
		parts = append(parts, a.AbstractText)
	} else if a.Answer != "" {
		parts = append(parts, a.Answer)
	}
	if len(parts) <= 1 {
		n := 0
		for _, t := range a.RelatedTopics {
			if t.Text == "" {
				continue
			}
			parts = append(parts, t.Text)
			if n++; n == maxRelatedTopics {
				break
			}
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	return strings.Join(parts, " ")
}

// RetryingLookup runs each query with a per-attempt timeout and exponential
// backoff between attempts. MaxAttempts counts the first try, so the default
// of 4 is one try and three retries. It never fails: an exhausted query yields a
// failure notice the model can read.
type RetryingLookup struct {
	Next        Lookup
	MaxAttempts int
	Initial     time.Duration
	Timeout     time.Duration
}

func NewRetryingLookup(next Lookup) *RetryingLookup {
	return &RetryingLookup{
		Next:        next,
		MaxAttempts: defaultLookupTries,
		Initial:     defaultLookupDelay,
		Timeout:     defaultLookupTimeout,
	}
}

// Summarize returns the lookup summary or a failure notice.
func (r *RetryingLookup) Summarize(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Lookup failed: empty query."
	}
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	tries := 0
	var summary string
	op := func() error {
		tries++
		attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()
		s, err := r.Next.Lookup(attemptCtx, query)
		if err != nil {
			return err
		}
		summary = s
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	if err == nil {
		return summary
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("query", query).Int("attempts", tries).Msg("web lookup failed")
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("Lookup for %q was cancelled.", query)
	}
	return fmt.Sprintf("Lookup failed for %q after %d attempts: %v", query, tries, err)
}

// Tool returns the web_lookup declaration and its executor.
func (r *RetryingLookup) Tool() (Tool, ToolFunc) {
	decl := Tool{
		Name:        lookupToolName,
		Description: "Search the web for a merchant or payee name and return a short summary of what the business is.",
		Param:       "query",
		ParamDesc:   "Merchant or payee name to look up",
	}
	fn := func(ctx context.Context, args map[string]any) string {
		q, _ := args["query"].(string)
		return r.Summarize(ctx, q)
	}
	return decl, fn
}
