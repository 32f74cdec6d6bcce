// Package transfer renders collections as JSON or CSV and reads JSON imports.
package transfer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"list-manager/internal/model"
)

// MaxImportBytes bounds the size of an import document.
const MaxImportBytes = 5 << 20

// WriteJSON writes the collection in its stored shape.
func WriteJSON(w io.Writer, c model.Collection) error {
	data, err := model.EncodeCollection(c)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSV writes a header row (id, createdAt, updatedAt, then every schema
// field) followed by one row per record.
func WriteCSV(w io.Writer, s *model.Schema, c model.Collection) error {
	cw := csv.NewWriter(w)
	header := []string{model.KeyID, model.KeyCreatedAt, model.KeyUpdatedAt}
	for _, f := range s.Fields {
		header = append(header, f.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range c {
		row := make([]string, 0, len(header))
		row = append(row, rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339))
		for _, f := range s.Fields {
			row = append(row, model.FormatValue(f, rec.Fields[f.Name]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadJSON parses an import document. It must be an array of objects, each with
// a unique string id and field values that pass schema validation; a value that
// cannot be coerced to its field type rejects the document. Records without
// timestamps are stamped with now. Any failure is a *model.CollaboratorError and
// no partial result is returned.
func ReadJSON(s *model.Schema, r io.Reader, now time.Time) (model.Collection, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportBytes+1))
	if err != nil {
		return nil, importError(fmt.Errorf("read: %w", err))
	}
	if len(data) > MaxImportBytes {
		return nil, importError(fmt.Errorf("file is larger than %d bytes", MaxImportBytes))
	}
	c, warnings, err := model.DecodeCollection(s, data)
	if err != nil {
		return nil, importError(err)
	}
	for _, w := range warnings {
		if w.Dropped {
			return nil, importError(fmt.Errorf("record %s: %s has a value of the wrong type", w.RecordID, w.Field))
		}
	}
	for i := range c {
		rec := &c[i]
		if err := s.Validate(rec.Fields); err != nil {
			return nil, importError(fmt.Errorf("record %s: %w", rec.ID, err))
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.Before(rec.CreatedAt) {
			rec.UpdatedAt = rec.CreatedAt
		}
	}
	return c, nil
}

func importError(err error) error {
	return &model.CollaboratorError{Op: "import", Err: err}
}
