package filestore

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/crab-wise/tryst-scraper/internal/entity"
)

// csvHeader is the fixed output column order.
var csvHeader = []string{
	"Profile URL", "Name", "Email", "Phone", "Mobile", "WhatsApp",
	"Linktree", "Website", "OnlyFans", "Fansly", "Twitter", "Instagram",
	"Snapchat", "Telegram", "Process Time", "Success", "Low Confidence",
}

// RecordWriter provides a concrete implementation of the RecordStore
// interface on an append-only CSV file. Appends are serialized by a mutex so
// concurrent workers never interleave rows.
type RecordWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewRecordWriter opens the CSV for appending, writing the header row only
// when the file is new or empty.
func NewRecordWriter(path string) (*RecordWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open records %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat records %s: %w", path, err)
	}

	w := &RecordWriter{file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.writer.Flush()
		if err := w.writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}
	return w, nil
}

// Append writes one row for the record and flushes it to disk immediately so
// completed work survives a crash.
func (w *RecordWriter) Append(rec *entity.ProfileRecord) error {
	success := "No"
	if rec.Success {
		success = "Yes"
	}
	// Rows from pages that never scored as confirmed profile content are
	// flagged so reviewers can separate them from confirmed extractions.
	lowConfidence := "No"
	if rec.LowConfidence {
		lowConfidence = "Yes"
	}
	row := []string{
		rec.URL,
		rec.Field(entity.FieldName),
		rec.Field(entity.FieldEmail),
		rec.Field(entity.FieldPhone),
		rec.Field(entity.FieldMobile),
		rec.Field(entity.FieldWhatsApp),
		rec.Field(entity.FieldLinktree),
		rec.Field(entity.FieldWebsite),
		rec.Field(entity.FieldOnlyFans),
		rec.Field(entity.FieldFansly),
		rec.Field(entity.FieldTwitter),
		rec.Field(entity.FieldInstagram),
		rec.Field(entity.FieldSnapchat),
		rec.Field(entity.FieldTelegram),
		fmt.Sprintf("%.2fs", rec.ProcessTime.Seconds()),
		success,
		lowConfidence,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("append record for %s: %w", rec.URL, err)
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flush record for %s: %w", rec.URL, err)
	}
	return nil
}

// Close flushes and releases the file.
func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
