package translator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

const DefaultBatchSize = 50

// ErrInterrupted is returned by Batcher.Translate when the stop check
// fires between batches.
var ErrInterrupted = errors.New("translation interrupted")

// Batcher feeds a Backend bounded slices of the input so a caller can stop
// the work between requests and observe progress.
type Batcher struct {
	Backend   Backend
	BatchSize int
	// Stopped is polled before every batch. Nil means never.
	Stopped func() bool
	// Progress receives the number of translated entries after each batch.
	Progress func(done, total int)
}

// Translate returns exactly len(texts) translations in input order, or an
// error. Partial results are never returned.
func (b *Batcher) Translate(ctx context.Context, texts []string, target language.Tag) ([]string, error) {
	if b.Backend == nil {
		return nil, fmt.Errorf("translation backend not set")
	}
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if b.Stopped != nil && b.Stopped() {
			return nil, ErrInterrupted
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+size, len(texts))
		translated, err := b.Backend.Translate(ctx, texts[start:end], target)
		if err != nil {
			return nil, fmt.Errorf("batch translation failed for lines %d-%d: %w", start+1, end, err)
		}
		if err := checkCount(len(translated), end-start); err != nil {
			return nil, fmt.Errorf("batch translation failed for lines %d-%d: %w", start+1, end, err)
		}
		out = append(out, translated...)

		if b.Progress != nil {
			b.Progress(len(out), len(texts))
		}
	}
	return out, nil
}
