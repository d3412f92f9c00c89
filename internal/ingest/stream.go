package ingest

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/benefitscout/leadgen-cli/internal/diag"
)

// Stream yields normalized rows from one filing table. The caller sees rows
// as ordered string slices plus a ColumnMap built once from the detected
// header.
type Stream struct {
	Columns *ColumnMap

	category Category
	reader   *csv.Reader
	closers  []io.Closer
	diag     *diag.Emitter
	rowsRead int64
	encoding string
}

// Open opens the compressed archive at path, selects the largest plain-CSV
// entry, detects encoding and header, and returns a row stream. A missing
// file or missing CSV entry is fatal to the stage.
func Open(path string, category Category, d *diag.Emitter) (*Stream, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open archive %s", path)
	}

	entry := largestCSVEntry(&zr.Reader)
	if entry == nil {
		zr.Close() //nolint:errcheck
		return nil, eris.Wrapf(ErrNoCSVEntry, "ingest: archive %s", path)
	}

	rc, err := entry.Open()
	if err != nil {
		zr.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "ingest: open entry %s", entry.Name)
	}

	s, err := fromReader(rc, category, d)
	if err != nil {
		rc.Close() //nolint:errcheck
		zr.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "ingest: %s!%s", path, entry.Name)
	}
	s.closers = append(s.closers, rc, zr)

	zap.L().Info("ingest stream open",
		zap.String("archive", path),
		zap.String("entry", entry.Name),
		zap.String("category", string(category)),
		zap.String("encoding", s.encoding),
		zap.Strings("header", s.Columns.Header()),
	)
	return s, nil
}

// OpenReader builds a stream directly from r. Used for uncompressed tables
// and tests.
func OpenReader(r io.Reader, category Category, d *diag.Emitter) (*Stream, error) {
	return fromReader(io.NopCloser(r), category, d)
}

func fromReader(rc io.ReadCloser, category Category, d *diag.Emitter) (*Stream, error) {
	br := bufio.NewReaderSize(rc, sniffLen)
	block, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, eris.Wrap(err, "ingest: read header block")
	}

	encName, enc := detectEncoding(block)

	cr := csv.NewReader(decodeReader(br, enc))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	s := &Stream{category: category, reader: cr, diag: d, encoding: encName}
	if err := s.locateHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

// locateHeader scans the rows before the 50-row cutoff for the category's
// header. A header on or past the cutoff means the wrong file.
func (s *Stream) locateHeader() error {
	for i := 1; i < headerRowLimit; i++ {
		row, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A garbled preamble row is not fatal to the scan.
			continue
		}
		if isHeader(s.category, row) {
			s.Columns = newColumnMap(row)
			return nil
		}
	}
	if s.diag != nil {
		s.diag.Emit("ingest", diag.HeaderNotFound, fmt.Sprintf("no %s header in first %d rows", s.category, headerRowLimit))
	}
	return ErrHeaderNotFound
}

// Next returns the next non-empty data row. Malformed rows are reported as
// INGEST_WARN diagnostics and skipped. Returns io.EOF when the table ends.
func (s *Stream) Next() ([]string, error) {
	want := len(s.Columns.Header())
	for {
		row, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			s.warn(fmt.Sprintf("row %d: %v", s.rowsRead+1, err))
			continue
		}
		s.rowsRead++

		if isEmptyRow(row) {
			continue
		}
		if len(row) != want {
			s.warn(fmt.Sprintf("row %d: column count %d, want %d", s.rowsRead, len(row), want))
			continue
		}
		return row, nil
	}
}

// RowsRead returns the number of data rows consumed so far, counting skipped
// rows. Exposed for progress reporting and stage-level caps.
func (s *Stream) RowsRead() int64 {
	return s.rowsRead
}

// Encoding returns the encoding chosen for this stream.
func (s *Stream) Encoding() string {
	return s.encoding
}

// Close releases the underlying archive handles.
func (s *Stream) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Stream) warn(detail string) {
	if s.diag != nil {
		s.diag.Emit("ingest", diag.IngestWarn, detail)
	}
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// largestCSVEntry picks the biggest .csv entry by uncompressed size.
func largestCSVEntry(zr *zip.Reader) *zip.File {
	var best *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	return best
}
