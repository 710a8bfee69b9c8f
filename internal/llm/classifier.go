package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/logger"
)

// Uncategorized is the fallback label for any classification that cannot be trusted.
const Uncategorized = "Uncategorized"

// DefaultMaxToolRounds bounds the lookup rounds per classification.
const DefaultMaxToolRounds = 5

var (
	ErrMalformedAnswer = errors.New("llm: malformed answer")
	ErrUnknownCategory = errors.New("llm: category not in list")
)

// Prediction is the classifier's answer. Degraded is set when the answer is
// the fallback produced by a failure rather than a model decision.
type Prediction struct {
	Category   string
	Confidence float64
	Degraded   bool
	Rounds     int
}

func degraded(rounds int) Prediction {
	return Prediction{Category: Uncategorized, Confidence: 0, Degraded: true, Rounds: rounds}
}

// Classifier asks a Model for a category, letting it look up unfamiliar payees.
type Classifier struct {
	model     Model
	lookup    *RetryingLookup
	maxRounds int
}

// NewClassifier returns a classifier. lookup may be nil, in which case the
// model is offered no tools.
func NewClassifier(model Model, lookup *RetryingLookup, maxRounds int) *Classifier {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &Classifier{model: model, lookup: lookup, maxRounds: maxRounds}
}

// Classify never fails; every error degrades to (Uncategorized, 0) and is logged.
func (c *Classifier) Classify(ctx context.Context, txn repository.Transaction, categories []string) Prediction {
	log := logger.FromContext(ctx).With().Int64("transaction_id", txn.ID).Logger()
	if len(categories) == 0 {
		log.Warn().Msg("no categories to classify against")
		return degraded(0)
	}

	req := Request{
		System:   systemPrompt,
		Messages: []Message{{Role: RoleUser, Text: BuildPrompt(txn, categories)}},
	}
	tools := map[string]ToolFunc{}
	if c.lookup != nil {
		decl, fn := c.lookup.Tool()
		req.Tools = []Tool{decl}
		tools[decl.Name] = fn
	}

	conv := NewConversation(c.model, req, tools, c.maxRounds)
	answer, err := conv.Run(ctx)
	if err != nil {
		log.Warn().Err(err).Int("rounds", conv.Rounds()).Msg("classification failed")
		return degraded(conv.Rounds())
	}
	category, confidence, err := ParseAnswer(answer, categories)
	if err != nil {
		log.Warn().Err(err).Str("answer", answer).Msg("classification answer rejected")
		return degraded(conv.Rounds())
	}
	log.Debug().Str("category", category).Float64("confidence", confidence).Int("rounds", conv.Rounds()).Msg("classified")
	return Prediction{Category: category, Confidence: confidence, Rounds: conv.Rounds()}
}

// ParseAnswer accepts exactly "CATEGORY|CONFIDENCE". The category must name
// one of categories, exactly or ignoring case; the canonical spelling is
// returned. Confidence must be a number in [0,1].
func ParseAnswer(answer string, categories []string) (string, float64, error) {
	parts := strings.Split(strings.TrimSpace(answer), "|")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedAnswer, answer)
	}
	name := strings.TrimSpace(parts[0])
	conf, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || math.IsNaN(conf) || conf < 0 || conf > 1 {
		return "", 0, fmt.Errorf("%w: confidence %q", ErrMalformedAnswer, strings.TrimSpace(parts[1]))
	}
	for _, c := range categories {
		if c == name {
			return c, conf, nil
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c, name) {
			return c, conf, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

const systemPrompt = "You are a financial transaction categorization expert. " +
	"You may call web_lookup to learn what an unfamiliar merchant sells before answering."

var accountTypePhrases = map[string]string{
	"CHECKING":   "checking account",
	"SAVINGS":    "savings account",
	"CREDITCARD": "credit card",
	"CASH":       "cash account",
	"BROKERAGE":  "brokerage account",
	"INVESTMENT": "investment account",
	"RETIREMENT": "retirement account",
	"LOAN":       "loan",
	"MORTGAGE":   "mortgage",
	"ASSET":      "asset account",
	"LIABILITY":  "liability account",
}

// AccountTypePhrase turns a stored account type code into words.
func AccountTypePhrase(code string) string {
	if p, ok := accountTypePhrases[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return p
	}
	return strings.ToLower(strings.ReplaceAll(code, "_", " "))
}

// MaskDigits hides all but the last four digits of s.
func MaskDigits(s string) string {
	total := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			total++
		}
	}
	var b strings.Builder
	seen := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen++
			if total-seen >= 4 {
				b.WriteRune('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildPrompt describes txn and lists the allowed answers.
func BuildPrompt(txn repository.Transaction, categories []string) string {
	var b strings.Builder
	b.WriteString("Analyze this transaction and choose the most appropriate category.\n\n")
	b.WriteString("Transaction Details:\n")
	weekday := txn.Date.In(time.UTC).Weekday()
	fmt.Fprintf(&b, "- Date: %s (%s)\n", txn.Date, weekday)
	fmt.Fprintf(&b, "- Payee: %s\n", txn.Payee)
	direction := "money out"
	if txn.Amount.IsPositive() {
		direction = "money in"
	}
	fmt.Fprintf(&b, "- Amount: %s (%s)\n", txn.Amount.StringFixed(2), direction)
	if name := repository.Str(txn.AccountName); name != "" {
		if typ := repository.Str(txn.AccountType); typ != "" {
			fmt.Fprintf(&b, "- Account: %s (%s)\n", name, AccountTypePhrase(typ))
		} else {
			fmt.Fprintf(&b, "- Account: %s\n", name)
		}
	} else if typ := repository.Str(txn.AccountType); typ != "" {
		fmt.Fprintf(&b, "- Account type: %s\n", AccountTypePhrase(typ))
	}
	if note := repository.Str(txn.FINote); note != "" {
		fmt.Fprintf(&b, "- Institution note: %s\n", MaskDigits(note))
	}
	optional := []struct{ label, value string }{
		{"Memo", repository.Str(txn.Memo)},
		{"Reference", repository.Str(txn.Reference)},
		{"Check number", repository.Str(txn.CheckNumber)},
	}
	for _, o := range optional {
		if o.value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", o.label, o.value)
		}
	}

	b.WriteString("\nAvailable Categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "  - %s\n", c)
	}
	b.WriteString("\nInstructions:\n")
	b.WriteString("1. Choose the single most appropriate category from the list above.\n")
	b.WriteString("2. If the payee is unfamiliar, call web_lookup with the merchant name first.\n")
	b.WriteString("3. Give a confidence score between 0.0 and 1.0.\n")
	b.WriteString("4. Respond ONLY with the category name and confidence, nothing else.\n\n")
	b.WriteString("Format your response exactly as: CATEGORY_NAME|CONFIDENCE\n")
	b.WriteString("Example: Groceries|0.95")
	return b.String()
}
