package service

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/llm"
	"github.com/jask/bookkeeper/internal/logger"
	"github.com/jask/bookkeeper/internal/rules"
)

const (
	ruleConfidence     = 0.95
	predictorThreshold = 0.8
	defaultConcurrency = 4
)

// Source says which stage produced a Result.
type Source string

const (
	SourceRule     Source = "rule"
	SourceModel    Source = "model"
	SourceLLM      Source = "llm"
	SourceExisting Source = "existing"
	SourceDegraded Source = "degraded"
)

type Result struct {
	Category   string
	Confidence float64
	Source     Source
}

// Predictor is an optional trained model consulted after the rules.
type Predictor interface {
	Predict(ctx context.Context, txn repository.Transaction, categories []string) (string, float64)
}

// LLMClassifier is the remote fallback. It reports failures as degraded predictions.
type LLMClassifier interface {
	Classify(ctx context.Context, txn repository.Transaction, categories []string) llm.Prediction
}

// Categorizer applies classification precedence: rules, then the predictor
// when confident, then the LLM, then whatever the transaction already has.
type Categorizer struct {
	Rules     *rules.Matcher
	Predictor Predictor
	LLM       LLMClassifier

	// Concurrency bounds ClassifyAll workers; zero means 4.
	Concurrency int
	// Limiter, when set, paces LLM calls.
	Limiter *rate.Limiter
	// Progress, when set, is called after each transaction in ClassifyAll.
	Progress func(done, total int)
}

func (c *Categorizer) Classify(ctx context.Context, txn repository.Transaction, categories []string) Result {
	if cat, ok := c.Rules.Match(txn.Payee); ok {
		return Result{Category: cat, Confidence: ruleConfidence, Source: SourceRule}
	}

	if c.Predictor != nil {
		if cat, conf := c.Predictor.Predict(ctx, txn, categories); conf > predictorThreshold {
			return Result{Category: cat, Confidence: conf, Source: SourceModel}
		}
	}

	if c.LLM != nil {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				log := logger.FromContext(ctx)
				log.Debug().Err(err).Int64("transaction_id", txn.ID).Msg("llm rate limiter wait aborted")
				return Result{Category: llm.Uncategorized, Source: SourceDegraded}
			}
		}
		p := c.LLM.Classify(ctx, txn, categories)
		src := SourceLLM
		if p.Degraded {
			src = SourceDegraded
		}
		return Result{Category: p.Category, Confidence: p.Confidence, Source: src}
	}

	cat := repository.Str(txn.Category)
	if cat == "" {
		cat = llm.Uncategorized
	}
	return Result{Category: cat, Confidence: 0, Source: SourceExisting}
}

// Suggestion pairs a transaction with its classification.
type Suggestion struct {
	Transaction repository.Transaction
	Result
}

// ClassifyAll classifies txns concurrently and returns suggestions in input
// order. On cancellation no new work starts; the suggestions finished so far
// are returned with the context error.
func (c *Categorizer) ClassifyAll(ctx context.Context, txns []repository.Transaction, categories []string) ([]Suggestion, error) {
	limit := c.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	results := make([]Suggestion, len(txns))
	finished := make([]bool, len(txns))
	var mu sync.Mutex
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range txns {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := c.Classify(gctx, txns[i], categories)
			if err := gctx.Err(); err != nil {
				// The result may be a cancellation artifact.
				return err
			}
			mu.Lock()
			results[i] = Suggestion{Transaction: txns[i], Result: r}
			finished[i] = true
			mu.Unlock()
			if c.Progress != nil {
				c.Progress(int(done.Add(1)), len(txns))
			}
			return nil
		})
	}
	err := g.Wait()

	out := make([]Suggestion, 0, len(txns))
	for i, ok := range finished {
		if ok {
			out = append(out, results[i])
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	return out, err
}

// Uncategorized selects transactions with no category or the Uncategorized label.
func Uncategorized(txns []repository.Transaction) []repository.Transaction {
	var out []repository.Transaction
	for _, t := range txns {
		if c := repository.Str(t.Category); c == "" || c == llm.Uncategorized {
			out = append(out, t)
		}
	}
	return out
}

// Confident keeps suggestions strictly above threshold.
func Confident(s []Suggestion, threshold float64) []Suggestion {
	var out []Suggestion
	for _, sg := range s {
		if sg.Confidence > threshold {
			out = append(out, sg)
		}
	}
	return out
}
