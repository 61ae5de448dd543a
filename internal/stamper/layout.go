package stamper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

// Rect is a region on a page in points, measured from the page's top-left corner.
type Rect struct {
	X      float64 `toml:"x" yaml:"x"`
	Y      float64 `toml:"y" yaml:"y"`
	Width  float64 `toml:"width" yaml:"width"`
	Height float64 `toml:"height" yaml:"height"`
}

// Layout places the QR image and the hash text on one page.
// Text is drawn from Text's top-left corner; its width and height only
// document the region reserved for it.
type Layout struct {
	Page     int      `toml:"page" yaml:"page"`
	QR       Rect     `toml:"qr" yaml:"qr"`
	Text     Rect     `toml:"text" yaml:"text"`
	FontName string   `toml:"font_name" yaml:"font_name"`
	FontSize int      `toml:"font_size" yaml:"font_size"`
	// Opacity is nil when unset; an explicit 0 draws an invisible stamp.
	Opacity  *float64 `toml:"opacity" yaml:"opacity"`
}

// DefaultLayout stamps the first page: a 150pt QR code at (50,50) and the
// hash text in 8pt Helvetica just below it.
func DefaultLayout() Layout {
	return Layout{
		Page:     1,
		QR:       Rect{X: 50, Y: 50, Width: 150, Height: 150},
		Text:     Rect{X: 50, Y: 210, Width: 450, Height: 40},
		FontName: "Helvetica",
		FontSize: 8,
		Opacity:  Float(1),
	}
}

// Float returns a pointer to v, for setting Layout.Opacity in literals.
func Float(v float64) *float64 { return &v }

func (l Layout) opacity() float64 {
	if l.Opacity == nil {
		return 1
	}
	return *l.Opacity
}

// WithDefaults fills zero fields from DefaultLayout. Opacity is only
// defaulted when absent, so a configured 0 is kept.
func (l Layout) WithDefaults() Layout {
	def := DefaultLayout()
	if l.Page == 0 {
		l.Page = def.Page
	}
	if l.QR == (Rect{}) {
		l.QR = def.QR
	}
	if l.Text == (Rect{}) {
		l.Text = def.Text
	}
	if l.FontName == "" {
		l.FontName = def.FontName
	}
	if l.FontSize == 0 {
		l.FontSize = def.FontSize
	}
	if l.Opacity == nil {
		l.Opacity = def.Opacity
	}
	return l
}

// Validate rejects layouts that cannot be drawn.
func (l Layout) Validate() error {
	if l.Page < 1 {
		return fmt.Errorf("layout: page must be >= 1, got %d", l.Page)
	}
	if l.QR.Width <= 0 || l.QR.Height <= 0 {
		return fmt.Errorf("layout: qr rectangle must have a positive size")
	}
	if l.FontSize <= 0 {
		return fmt.Errorf("layout: font size must be positive")
	}
	if o := l.opacity(); o < 0 || o > 1 {
		return fmt.Errorf("layout: opacity must be within [0,1]")
	}
	return nil
}

// LoadLayout reads a layout from a .toml, .yaml or .yml file.
// An empty path yields DefaultLayout.
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout file: %w", err)
	}

	var l Layout
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &l)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &l)
	default:
		return Layout{}, fmt.Errorf("unsupported layout file type %q", filepath.Ext(path))
	}
	if err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout file: %w", err)
	}

	l = l.WithDefaults()
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
