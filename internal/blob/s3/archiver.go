package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// ClosedPositionSource provides read access to closed positions for
// archival. The Postgres position store satisfies it.
type ClosedPositionSource interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// PositionArchiver implements domain.Archiver by serializing aged closed
// positions to JSONL and uploading them to cold storage. Rows are never
// deleted from the primary store here; the archive is additive.
type PositionArchiver struct {
	writer    domain.BlobWriter
	positions ClosedPositionSource
	logger    *slog.Logger
}

// NewPositionArchiver creates a PositionArchiver.
func NewPositionArchiver(writer domain.BlobWriter, positions ClosedPositionSource, logger *slog.Logger) *PositionArchiver {
	return &PositionArchiver{
		writer:    writer,
		positions: positions,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveClosed uploads every position closed before the cutoff to
// archive/positions/YYYY-MM.jsonl and returns the record count.
func (a *PositionArchiver) ArchiveClosed(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(positions))
	a.logger.Info("archived closed positions",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/positions/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*PositionArchiver)(nil)
