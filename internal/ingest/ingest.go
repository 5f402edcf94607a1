// Package ingest watches a directory for CSV log exports and loads them into
// the store. Each file is ingested once; processed filenames are recorded so
// restarts do not duplicate data.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eel-hour/Unified-Security-Assistant/internal/metrics"
	"github.com/eel-hour/Unified-Security-Assistant/internal/store"
)

// requiredColumns are the CSV header names an export must carry, in any order.
var requiredColumns = []string{
	"Date", "Time", "Policy Identity", "Internal IP Address",
	"External IP Address", "Action", "Destination", "Categories",
}

// Watcher ingests CSV files from a watch directory into the store.
type Watcher struct {
	logger    *zap.SugaredLogger
	store     *store.Store
	dir       string
	separator rune
}

// NewWatcher creates a watcher over dir. separator is the CSV field
// separator, ';' in the product exports this was built for.
func NewWatcher(logger *zap.SugaredLogger, st *store.Store, dir string, separator rune) *Watcher {
	return &Watcher{
		logger:    logger,
		store:     st,
		dir:       dir,
		separator: separator,
	}
}

// Run processes files already present in the directory, then blocks watching
// for new ones until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	if err := w.processExisting(ctx); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}

	w.logger.Infof("Watching %s for CSV files", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}

			// Small delay so the writer can finish the file.
			time.Sleep(100 * time.Millisecond)

			if err := w.IngestFile(ctx, event.Name); err != nil {
				w.logger.Errorf("Failed to ingest %s: %v", event.Name, err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("File watcher error: %v", err)
		}
	}
}

// processExisting ingests CSV files that were already in the directory when
// the watcher started.
func (w *Watcher) processExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan watch directory: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		if err := w.IngestFile(ctx, filepath.Join(w.dir, entry.Name())); err != nil {
			w.logger.Errorf("Failed to ingest existing file %s: %v", entry.Name(), err)
			continue
		}
		processed++
	}
	if processed > 0 {
		w.logger.Infof("Processed %d existing CSV files", processed)
	}
	return nil
}

// IngestFile loads one CSV file into the store and marks it processed.
// Already-processed files are skipped silently.
func (w *Watcher) IngestFile(ctx context.Context, path string) error {
	filename := filepath.Base(path)
	start := time.Now()

	done, err := w.store.IsFileProcessed(ctx, filename)
	if err != nil {
		return err
	}
	if done {
		metrics.RecordIngestFile("skipped", time.Since(start).Seconds())
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		metrics.RecordIngestFile("failed", time.Since(start).Seconds())
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	entries, err := w.parse(f, filename)
	if err != nil {
		metrics.RecordIngestFile("failed", time.Since(start).Seconds())
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	if err := w.store.InsertEntries(ctx, entries); err != nil {
		metrics.RecordIngestFile("failed", time.Since(start).Seconds())
		return err
	}
	if err := w.store.MarkFileProcessed(ctx, filename); err != nil {
		return err
	}

	metrics.RecordIngestFile("processed", time.Since(start).Seconds())
	metrics.AddIngestRows(len(entries))
	w.logger.Infof("Ingested %s (%d entries)", filename, len(entries))
	return nil
}

// parse reads the CSV stream and maps the required columns to log entries.
// Column order in the file does not matter; extra columns are ignored.
func (w *Watcher) parse(r io.Reader, filename string) ([]store.LogEntry, error) {
	reader := csv.NewReader(r)
	reader.Comma = w.separator
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var entries []store.LogEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		field := func(name string) string { return record[index[name]] }
		entries = append(entries, store.LogEntry{
			Date:           field("Date"),
			Time:           field("Time"),
			PolicyIdentity: field("Policy Identity"),
			InternalIP:     field("Internal IP Address"),
			ExternalIP:     field("External IP Address"),
			Action:         field("Action"),
			Destination:    field("Destination"),
			Categories:     field("Categories"),
			SourceFile:     filename,
		})
	}
	return entries, nil
}
