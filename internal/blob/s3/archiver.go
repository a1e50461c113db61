package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// Archiver exports aged ticks and signals to object storage as NDJSON before
// they are pruned from the hot store. Deletion is the caller's step, taken
// only after the upload succeeded.
type Archiver struct {
	writer    domain.BlobWriter
	ticks     domain.TickStore
	signals   domain.SignalStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates an Archiver. batchSize caps how many rows one archive
// object holds.
func NewArchiver(writer domain.BlobWriter, ticks domain.TickStore, signals domain.SignalStore, audit domain.AuditStore, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Archiver{
		writer:    writer,
		ticks:     ticks,
		signals:   signals,
		audit:     audit,
		batchSize: batchSize,
	}
}

// ArchiveTicks exports ticks older than before and returns the number
// archived. The upload lands at archive/ticks/YYYY-MM.ndjson.
func (a *Archiver) ArchiveTicks(ctx context.Context, before time.Time) (int64, error) {
	ticks, err := a.ticks.ListBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks query: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	buf, err := marshalNDJSON(ticks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks marshal: %w", err)
	}
	path := archivePath("ticks", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks upload: %w", err)
	}

	count := int64(len(ticks))
	if err := a.audit.Log(ctx, "archiver", "ticks_archived", path, map[string]any{
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive ticks audit log: %w", err)
	}
	return count, nil
}

// ArchiveSignals exports signals older than before and returns the number
// archived. The upload lands at archive/signals/YYYY-MM.ndjson.
func (a *Archiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	signals, err := a.signals.ListBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(signals) == 0 {
		return 0, nil
	}

	buf, err := marshalNDJSON(signals)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}
	path := archivePath("signals", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	count := int64(len(signals))
	if err := a.audit.Log(ctx, "archiver", "signals_archived", path, map[string]any{
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive signals audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/ticks/2025-01.ndjson
//	archive/signals/2025-01.ndjson
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.ndjson", kind, before.Format("2006-01"))
}

// marshalNDJSON serialises records as newline-delimited JSON.
func marshalNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
