// Package xlsx stores the certificate log as an Excel workbook: one header
// row and one row per issued certificate, with the QR image embedded in the
// "QR Code" column.
package xlsx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/xuri/excelize/v2"

	"certstamp/internal/model"
	"certstamp/internal/repository"
)

// SheetName is the title of the log sheet in a new workbook.
const SheetName = "Certificate Logs"

// Header is the first row of the log.
var Header = []string{"ID", "Certificate Name", "SHA-256 Hash", "QR Code", "Date"}

const (
	colID = iota
	colName
	colDigest
	colQR
	colDate
)

// qrPixels is the edge length the embedded QR picture is scaled to.
const qrPixels = 60

// CertificateXLSX implements repository.CertificateRepository on a workbook file.
//
// Appends are serialized within the process and committed by writing a
// temporary file and renaming it over the log, so readers always open a
// complete workbook. Two processes appending to the same file can still lose
// a record; run a single writer per file.
type CertificateXLSX struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
	loc  *time.Location
}

// Option configures a CertificateXLSX.
type Option func(*CertificateXLSX)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *CertificateXLSX) { s.now = now }
}

// WithLocation sets the zone used to write and parse the Date column.
func WithLocation(loc *time.Location) Option {
	return func(s *CertificateXLSX) { s.loc = loc }
}

// NewCertificateXLSX returns a log backed by the workbook at path. The file is
// created on the first Append; its directory is created now.
func NewCertificateXLSX(path string, opts ...Option) (*CertificateXLSX, error) {
	if path == "" {
		return nil, fmt.Errorf("xlsx log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	s := &CertificateXLSX{path: path, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ repository.CertificateRepository = (*CertificateXLSX)(nil)

// Path returns the workbook location.
func (s *CertificateXLSX) Path() string { return s.path }

// Append adds one row and embeds qrImage in its QR Code cell.
func (s *CertificateXLSX) Append(ctx context.Context, cert *model.Certificate, qrImage []byte) (*model.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := repository.Fill(cert, s.now())
	rec.CreatedAt = rec.CreatedAt.In(s.loc)

	f, err := s.openOrCreate()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", repository.ErrStoreCorrupt, err)
	}
	if err := checkHeader(rows); err != nil {
		return nil, err
	}
	row := len(rows) + 1

	values := []any{rec.ID, rec.Name, rec.Digest, rec.QRCode, rec.Date()}
	if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(row), &values); err != nil {
		return nil, fmt.Errorf("write row: %w", err)
	}
	if len(qrImage) > 0 {
		if err := addQRPicture(f, sheet, row, qrImage, rec.Digest); err != nil {
			return nil, err
		}
	}

	if err := s.commit(f); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByDigest scans rows top to bottom and returns the first exact match.
func (s *CertificateXLSX) FindByDigest(ctx context.Context, digest string) (*model.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := f.Rows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreCorrupt, err)
	}
	defer func() { _ = rows.Close() }()

	header := true
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrStoreCorrupt, err)
		}
		if header {
			header = false
			if err := checkHeader([][]string{cols}); err != nil {
				return nil, err
			}
			continue
		}
		if cell(cols, colDigest) == digest {
			return s.parseRow(cols)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreCorrupt, err)
	}
	return nil, nil
}

// List returns a page of records in row order.
func (s *CertificateXLSX) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Certificate], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &repository.PageResult[model.Certificate]{Items: []model.Certificate{}}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreCorrupt, err)
	}
	if err := checkHeader(rows); err != nil {
		return nil, err
	}

	var data [][]string
	if len(rows) > 1 {
		data = rows[1:]
	}
	page := repository.Page(data, pq)
	items := make([]model.Certificate, 0, len(page))
	for _, cols := range page {
		c, err := s.parseRow(cols)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return &repository.PageResult[model.Certificate]{Items: items, Total: len(data)}, nil
}

// Ping reports whether the log directory is reachable. A missing log file is
// fine; it is created on the first append.
func (s *CertificateXLSX) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return classifyOpen(err)
	}
	return nil
}

func (s *CertificateXLSX) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, classifyOpen(err)
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, classifyOpen(err)
	}
	return f, nil
}

func (s *CertificateXLSX) openOrCreate() (*excelize.File, error) {
	f, err := s.open()
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return newWorkbook()
}

func newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "B", 32)
	_ = f.SetColWidth(SheetName, "C", "C", 68)
	_ = f.SetColWidth(SheetName, "D", "D", 10)
	_ = f.SetColWidth(SheetName, "E", "E", 20)
	return f, nil
}

// commit writes the workbook next to the log and renames it into place.
func (s *CertificateXLSX) commit(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".certlog-*.xlsx")
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write workbook: %v", repository.ErrStoreLocked, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	return nil
}

func (s *CertificateXLSX) parseRow(cols []string) (*model.Certificate, error) {
	created, err := time.ParseInLocation(model.DateLayout, cell(cols, colDate), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", repository.ErrStoreCorrupt, cell(cols, colDate))
	}
	return &model.Certificate{
		ID:        cell(cols, colID),
		Name:      cell(cols, colName),
		Digest:    cell(cols, colDigest),
		QRCode:    cell(cols, colQR),
		CreatedAt: created,
	}, nil
}

func addQRPicture(f *excelize.File, sheet string, row int, png []byte, alt string) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("decode qr image: %w", err)
	}
	scale := func(n int) float64 {
		if n <= 0 {
			return 1
		}
		return float64(qrPixels) / float64(n)
	}
	_ = f.SetRowHeight(sheet, row, 48)
	return f.AddPictureFromBytes(sheet, "D"+strconv.Itoa(row), &excelize.Picture{
		Extension: ".png",
		File:      png,
		Format: &excelize.GraphicOptions{
			AltText:     alt,
			ScaleX:      scale(cfg.Width),
			ScaleY:      scale(cfg.Height),
			OffsetX:     4,
			OffsetY:     2,
			Positioning: "oneCell",
		},
	})
}

// checkHeader accepts an empty sheet or one whose first row starts with Header.
func checkHeader(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	for i := colID; i <= colDigest; i++ {
		if cell(rows[0], i) != Header[i] {
			return fmt.Errorf("%w: unexpected header %q", repository.ErrStoreCorrupt, rows[0])
		}
	}
	return nil
}

func cell(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return ""
}

// classifyOpen maps an error from opening the workbook to the log's taxonomy.
func classifyOpen(err error) error {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY) {
		return fmt.Errorf("%w: %v", repository.ErrStoreLocked, err)
	}
	return fmt.Errorf("%w: %v", repository.ErrStoreCorrupt, err)
}
