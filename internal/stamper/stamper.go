// Package stamper overlays a QR image and a text block onto one page of a PDF.
package stamper

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrUnsupportedFormat = errors.New("document is not a readable pdf")
	ErrEmptyDocument     = errors.New("document has no pages")
	ErrPageOutOfRange    = errors.New("stamp page is beyond the last page")
	ErrInvalidImage      = errors.New("stamp image is not a readable png")
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

// HashText is the text block stamped under the QR code.
func HashText(digest string) string {
	return "SHA-256 Hash:\n" + digest
}

// Stamper writes stamps according to a fixed Layout. It holds no mutable
// state and may be shared between goroutines.
type Stamper struct {
	layout Layout
}

// New returns a Stamper for layout; zero fields take their defaults.
func New(layout Layout) (*Stamper, error) {
	layout = layout.WithDefaults()
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Stamper{layout: layout}, nil
}

// Layout returns the effective layout.
func (s *Stamper) Layout() Layout { return s.layout }

// Stamp returns a copy of doc with img and text drawn on the layout page.
// doc itself is not modified and all other pages are carried over as-is.
func (s *Stamper) Stamp(doc, img []byte, text string) ([]byte, error) {
	if len(doc) == 0 {
		return nil, ErrUnsupportedFormat
	}

	pages, err := api.PageCount(bytes.NewReader(doc), newConf())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if err := checkPage(pages, s.layout.Page); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	imageWM, err := api.ImageWatermarkForReader(bytes.NewReader(img), s.imageDesc(cfg.Width), true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("image stamp: %w", err)
	}
	textWM, err := api.TextWatermark(text, s.textDesc(), true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("text stamp: %w", err)
	}

	var out bytes.Buffer
	stamps := map[int][]*model.Watermark{s.layout.Page: {imageWM, textWM}}
	if err := api.AddWatermarksSliceMap(bytes.NewReader(doc), &out, stamps, newConf()); err != nil {
		return nil, fmt.Errorf("apply stamps: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount reports the number of pages in doc.
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), newConf())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return n, nil
}

func checkPage(pages, page int) error {
	if pages == 0 {
		return ErrEmptyDocument
	}
	if page < 1 || page > pages {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, pages)
	}
	return nil
}

// imageDesc anchors the image at the QR rectangle's top-left corner and
// scales it to the rectangle's smaller side.
func (s *Stamper) imageDesc(pixelWidth int) string {
	r := s.layout.QR
	side := min(r.Width, r.Height)
	scale := side / float64(pixelWidth)
	return fmt.Sprintf("position:tl, offset:%g %g, scalefactor:%g abs, rotation:0, opacity:%g",
		r.X, -r.Y, scale, s.layout.opacity())
}

func (s *Stamper) textDesc() string {
	r := s.layout.Text
	return fmt.Sprintf("fontname:%s, points:%d, position:tl, offset:%g %g, scalefactor:1 abs, rotation:0, opacity:%g, fillcolor:#000000, aligntext:l",
		s.layout.FontName, s.layout.FontSize, r.X, -r.Y, s.layout.opacity())
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
