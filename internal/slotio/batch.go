package slotio

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"

	"go.uber.org/multierr"
)

// StatFiles checks that every path is an existing regular file and returns
// the base names and the summed size the init calls announce.
func StatFiles(paths []string) (names []string, total int64, err error) {
	if len(paths) == 0 {
		return nil, 0, apperrors.Validation("files required")
	}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			return nil, 0, apperrors.Validation("file %q listed twice", p)
		}
		seen[p] = true
		info, err := os.Stat(p)
		if err != nil {
			return nil, 0, apperrors.Validation("file does not exist: %s", p)
		}
		if !info.Mode().IsRegular() {
			return nil, 0, apperrors.Validation("not a regular file: %s", p)
		}
		names = append(names, filepath.Base(p))
		total += info.Size()
	}
	return names, total, nil
}

// RollbackSuccessful cancels the slots of every successful file in results.
// It is the compensation for a failed finish call.
func (p *Pipeline) RollbackSuccessful(ctx context.Context, results []models.FileResult, op transport.OpCode) error {
	var errs error
	for _, r := range results {
		if !r.Success() {
			continue
		}
		errs = multierr.Append(errs, p.CancelUpload(ctx, r.Slots(), op))
	}
	return errs
}

// Notifier serializes per-file callbacks coming from concurrent workers.
type Notifier struct {
	mu sync.Mutex
	fn func(models.FileResult)
}

func NewNotifier(fn func(models.FileResult)) *Notifier {
	return &Notifier{fn: fn}
}

func (n *Notifier) Notify(r models.FileResult) {
	if n == nil || n.fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fn(r)
}
