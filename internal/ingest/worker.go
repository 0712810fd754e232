package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"rulebookai/internal/extract"
	"rulebookai/internal/storage"
	"rulebookai/internal/store"
	"rulebookai/pkg/domain"
	"rulebookai/pkg/queue"
)

// TextExtractor converts a PDF file on disk to plain text.
type TextExtractor interface {
	ExtractFile(path string) (string, error)
}

// Worker runs the rulebook ingestion workflow: fetch the uploaded PDF from
// the blob store, extract and clean its text, and move the rulebook to
// ready or failed. Re-running against the same rulebook re-extracts and
// re-sets status, so at-least-once delivery is safe.
type Worker struct {
	store     store.Store
	files     storage.ObjectStore
	extractor TextExtractor
}

func NewWorker(st store.Store, files storage.ObjectStore, extractor TextExtractor) *Worker {
	return &Worker{store: st, files: files, extractor: extractor}
}

// Start consumes ingestion jobs from the queue until ctx is canceled.
func (w *Worker) Start(ctx context.Context, q *queue.RedisJobQueue, concurrency int) {
	q.Start(ctx, concurrency, func(ctx context.Context, job queue.JobStatus) error {
		return w.Process(ctx, job.RulebookID)
	})
}

// Process runs one ingestion attempt. Extraction failures are terminal for
// the rulebook (marked failed, job acked); only persistence errors propagate
// so the queue can redeliver.
func (w *Worker) Process(ctx context.Context, rulebookID string) error {
	rb, ok, err := w.store.GetRulebook(rulebookID)
	if err != nil {
		return fmt.Errorf("load rulebook %s: %w", rulebookID, err)
	}
	if !ok {
		slog.Warn("ingestion job for unknown rulebook", "rulebook_id", rulebookID)
		return nil
	}
	if err := w.store.SetRulebookStatus(rb.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing %s: %w", rb.ID, err)
	}

	text, err := w.extractText(ctx, rb)
	if err != nil {
		return w.fail(rb.ID, err)
	}
	text = extract.Clean(text)
	if text == "" {
		return w.fail(rb.ID, fmt.Errorf("no text extracted"))
	}
	if err := w.store.SetRulebookText(rb.ID, text); err != nil {
		return fmt.Errorf("store text %s: %w", rb.ID, err)
	}
	slog.Info("rulebook ready", "rulebook_id", rb.ID, "game_id", rb.GameID, "chars", len(text))
	return nil
}

func (w *Worker) fail(rulebookID string, cause error) error {
	slog.Error("rulebook ingestion failed", "rulebook_id", rulebookID, "err", cause)
	if err := w.store.SetRulebookStatus(rulebookID, domain.StatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("mark failed %s: %w", rulebookID, err)
	}
	return nil
}

func (w *Worker) extractText(ctx context.Context, rb domain.Rulebook) (string, error) {
	obj, err := w.files.Get(ctx, rb.FilePath)
	if err != nil {
		return "", fmt.Errorf("fetch pdf %s: %w", rb.FilePath, err)
	}
	defer obj.Close()

	// The extractors need a seekable file on disk.
	tmp, err := os.CreateTemp("", "rulebook-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return w.extractor.ExtractFile(tmp.Name())
}
