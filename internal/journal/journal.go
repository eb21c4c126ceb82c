package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dvloznov/receipt-advisor/internal/domain"
)

// Journal is the append-only durable log of parsed transactions, one JSON
// record per line. Append is the only mutation that adds records and
// Reset the only one that removes them; corrections are modeled as new
// appended records.
type Journal struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open creates the journal file (and parent directory) if needed and
// returns a journal positioned for appending.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{path: path, f: f}, nil
}

// Append writes one transaction record. The record is flushed to disk
// before returning so a crash cannot lose an acknowledged upload.
func (j *Journal) Append(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("journal: transaction ID is required")
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("journal: marshal transaction %s: %w", tx.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return fmt.Errorf("journal: closed")
	}
	if _, err := j.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: append transaction %s: %w", tx.ID, err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// List returns all transactions in append order. Lines that fail to
// decode are skipped rather than failing the whole read.
func (j *Journal) List(ctx context.Context) ([]domain.Transaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readAll()
}

// Find returns the transaction with the given ID, if present.
func (j *Journal) Find(ctx context.Context, id string) (domain.Transaction, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	txs, err := j.readAll()
	if err != nil {
		return domain.Transaction{}, false, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, true, nil
		}
	}
	return domain.Transaction{}, false, nil
}

// Reset truncates the journal to empty.
func (j *Journal) Reset(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f != nil {
		if err := j.f.Close(); err != nil {
			return fmt.Errorf("journal: close before reset: %w", err)
		}
		j.f = nil
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: truncate %s: %w", j.path, err)
	}
	j.f = f
	return nil
}

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

func (j *Journal) readAll() ([]domain.Transaction, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Transaction{}, nil
		}
		return nil, fmt.Errorf("journal: open for read: %w", err)
	}
	defer f.Close()

	txs := []domain.Transaction{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var tx domain.Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", j.path, err)
	}
	return txs, nil
}
