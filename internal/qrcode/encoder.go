// Package qrcode renders payload strings as scannable PNG images.
package qrcode

import (
	"errors"
	"fmt"
	"strings"

	goqr "github.com/skip2/go-qrcode"
)

var (
	ErrEncodingOverflow = errors.New("qr payload exceeds capacity")
	ErrEmptyPayload     = errors.New("qr payload is empty")
	ErrUnknownLevel     = errors.New("unknown qr recovery level")
)

// go-qrcode reports capacity errors only as plain strings, from New and
// from its segment encoder respectively.
var overflowMessages = map[string]bool{
	"content too long to encode":        true,
	"length too long to be represented": true,
}

func isOverflow(err error) bool {
	return err != nil && overflowMessages[err.Error()]
}

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 150

// Encoder turns payload strings into PNG bytes.
type Encoder struct {
	level goqr.RecoveryLevel
	size  int
}

// NewEncoder returns an Encoder for the named recovery level
// ("low", "medium", "high", "highest"; empty means medium).
func NewEncoder(level string, size int) (*Encoder, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{level: lvl, size: size}, nil
}

// Size returns the PNG edge length in pixels.
func (e *Encoder) Size() int { return e.size }

// Encode renders payload as a PNG.
func (e *Encoder) Encode(payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	q, err := goqr.New(payload, e.level)
	if err != nil {
		if isOverflow(err) {
			return nil, fmt.Errorf("%w: %d bytes", ErrEncodingOverflow, len(payload))
		}
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	png, err := q.PNG(e.size)
	if err != nil {
		return nil, fmt.Errorf("qr png: %w", err)
	}
	return png, nil
}

// ParseLevel maps a level name to its error-correction level.
func ParseLevel(name string) (goqr.RecoveryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low", "l":
		return goqr.Low, nil
	case "", "medium", "m":
		return goqr.Medium, nil
	case "high", "q":
		return goqr.High, nil
	case "highest", "h":
		return goqr.Highest, nil
	default:
		return goqr.Medium, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}
