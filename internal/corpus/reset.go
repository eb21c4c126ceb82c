package corpus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// resetAttempts is how many times each side is tried before the failure
// is surfaced as a combined error.
const resetAttempts = 2

// JournalResetter truncates the transaction journal.
type JournalResetter interface {
	Reset(ctx context.Context) error
}

// IndexClearer removes all entries from the vector index.
type IndexClearer interface {
	Clear(ctx context.Context) error
}

// ResetError reports a reset that could not restore both stores even
// after retrying. At least one of the fields is non-nil.
type ResetError struct {
	JournalErr error
	IndexErr   error
}

func (e *ResetError) Error() string {
	switch {
	case e.JournalErr != nil && e.IndexErr != nil:
		return fmt.Sprintf("corpus reset failed: journal: %v; index: %v", e.JournalErr, e.IndexErr)
	case e.JournalErr != nil:
		return fmt.Sprintf("corpus reset failed: journal: %v", e.JournalErr)
	default:
		return fmt.Sprintf("corpus reset failed: index: %v", e.IndexErr)
	}
}

// ResetCoordinator wipes the journal and the vector index as one
// operation. While a reset runs, the guard blocks commits, so callers
// never observe one store cleared and the other not. Each side is retried
// before a combined failure is surfaced.
type ResetCoordinator struct {
	guard   *Guard
	journal JournalResetter
	index   IndexClearer
	log     zerolog.Logger
}

// NewResetCoordinator wires a coordinator over the shared guard and both
// stores.
func NewResetCoordinator(guard *Guard, journal JournalResetter, index IndexClearer, log zerolog.Logger) *ResetCoordinator {
	return &ResetCoordinator{
		guard:   guard,
		journal: journal,
		index:   index,
		log:     log,
	}
}

// Reset leaves the system indistinguishable from first boot: journal
// empty and index empty. Idempotent; resetting an already-empty corpus
// succeeds.
func (c *ResetCoordinator) Reset(ctx context.Context) error {
	release := c.guard.acquireReset()
	defer release()

	jErr := c.withRetry(ctx, "journal", c.journal.Reset)
	iErr := c.withRetry(ctx, "index", c.index.Clear)

	if jErr != nil || iErr != nil {
		return &ResetError{JournalErr: jErr, IndexErr: iErr}
	}

	c.log.Info().Msg("Corpus reset complete")
	return nil
}

func (c *ResetCoordinator) withRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= resetAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		c.log.Warn().
			Err(err).
			Str("store", name).
			Int("attempt", attempt).
			Msg("Reset attempt failed")
	}
	return err
}
