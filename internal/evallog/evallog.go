// Package evallog appends classification suggestions to a JSONL file so that
// user corrections can later be scored against them.
package evallog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jask/bookkeeper/internal/database/repository"
)

const fileName = "classification_results.jsonl"

// ErrNoRecord is returned by RecordCorrection when the transaction was never logged.
var ErrNoRecord = errors.New("evallog: no record for transaction")

// Snapshot is the transaction as the classifier saw it.
type Snapshot struct {
	Date        string `json:"date"`
	Payee       string `json:"payee"`
	Amount      string `json:"amount"`
	Memo        string `json:"memo,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

type Record struct {
	TransactionID     int64     `json:"transaction_id"`
	OriginalCategory  *string   `json:"original_category"`
	SuggestedCategory string    `json:"suggested_category"`
	Confidence        float64   `json:"confidence"`
	Source            string    `json:"source,omitempty"`
	ActualCategory    *string   `json:"actual_category"`
	Timestamp         time.Time `json:"timestamp"`
	RunID             string    `json:"run_id"`
	TransactionData   Snapshot  `json:"transaction_data"`
}

// Stats summarizes corrected records.
type Stats struct {
	Total    int
	Correct  int
	Accuracy float64
}

// Log is one results file. Each Log carries its own run id.
type Log struct {
	path  string
	runID string
	now   func() time.Time
	mu    sync.Mutex
}

// Open creates dir when needed and returns a log with a fresh run id.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evallog: mkdir: %w", err)
	}
	return &Log{path: filepath.Join(dir, fileName), runID: uuid.NewString(), now: time.Now}, nil
}

func (l *Log) Path() string  { return l.path }
func (l *Log) RunID() string { return l.runID }

// Record appends one suggestion.
func (l *Log) Record(txn repository.Transaction, suggested string, confidence float64, source string) error {
	rec := Record{
		TransactionID:     txn.ID,
		OriginalCategory:  txn.Category,
		SuggestedCategory: suggested,
		Confidence:        confidence,
		Source:            source,
		Timestamp:         l.now().UTC(),
		RunID:             l.runID,
		TransactionData: Snapshot{
			Date:        txn.Date.String(),
			Payee:       txn.Payee,
			Amount:      txn.Amount.StringFixed(2),
			Memo:        repository.Str(txn.Memo),
			AccountName: repository.Str(txn.AccountName),
			AccountType: repository.Str(txn.AccountType),
		},
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("evallog: encode: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("evallog: open: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("evallog: append: %w", err)
	}
	return f.Close()
}

// RecordCorrection sets the actual category on the most recent record for id.
func (l *Log) RecordCorrection(id int64, actual string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := l.readAll()
	if err != nil {
		return err
	}
	idx := -1
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].TransactionID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w %d", ErrNoRecord, id)
	}
	recs[idx].ActualCategory = &actual

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("evallog: encode: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("evallog: write: %w", err)
	}
	return os.Rename(tmp, l.path)
}

// AccuracyStats counts corrected records and how many the suggestion got right.
func (l *Log) AccuracyStats() (Stats, error) {
	l.mu.Lock()
	recs, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, r := range recs {
		if r.ActualCategory == nil {
			continue
		}
		s.Total++
		if r.SuggestedCategory == *r.ActualCategory {
			s.Correct++
		}
	}
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
	return s, nil
}

// Records returns every record in file order.
func (l *Log) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAll()
}

func (l *Log) readAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evallog: open: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("evallog: %s line %d: %w", l.path, line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("evallog: read: %w", err)
	}
	return out, nil
}
