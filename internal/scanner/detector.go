// Package scanner turns raw keystroke streams from HID barcode scanners into
// discrete scan events. Scanners type an entire barcode in under 100 ms and
// finish with Enter; the detector uses that timing to tell scans apart from
// a person typing.
package scanner

import (
	"strings"
	"time"
)

// DefaultTimeout is the maximum gap between two keystrokes of one scan.
const DefaultTimeout = 100 * time.Millisecond

// minScanLength is the shortest buffer accepted as a barcode.
const minScanLength = 4

// Result is one detected barcode scan.
type Result struct {
	Value string
	Kind  string
}

// Detector is the per-input-source scan state machine. It is synchronous and
// owns no goroutines; the capture source calls Feed from its own loop.
type Detector struct {
	timeout   time.Duration
	buf       strings.Builder
	lastEvent time.Time
}

// NewDetector builds a detector. timeout <= 0 selects DefaultTimeout.
func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{timeout: timeout}
}

// Feed consumes one character stamped with its arrival time. It returns a
// Result and true when the character completes a scan.
//
// A gap longer than the timeout discards the pending buffer: whatever came
// before was typing, not a scan in progress. Line terminators close the
// buffer, emitting a result only when at least four characters accumulated.
func (d *Detector) Feed(ch rune, now time.Time) (Result, bool) {
	if d.buf.Len() > 0 && now.Sub(d.lastEvent) > d.timeout {
		d.buf.Reset()
	}
	d.lastEvent = now

	if ch == '\n' || ch == '\r' {
		defer d.buf.Reset()
		if d.buf.Len() >= minScanLength {
			value := strings.TrimSpace(d.buf.String())
			return Result{Value: value, Kind: Classify(value)}, true
		}
		return Result{}, false
	}

	d.buf.WriteRune(ch)
	return Result{}, false
}

// code39Charset is the full CODE39 alphabet (case-insensitive match).
const code39Charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-. $/+%"

// Classify guesses the symbology of a scanned value from the value alone.
// It is a heuristic, not a checksum validator: malformed codes still map to
// one of the six kinds, defaulting to CODE128.
func Classify(value string) string {
	if isDigits(value) {
		switch len(value) {
		case 13:
			return "EAN13"
		case 8:
			return "EAN8"
		case 12:
			return "UPC-A"
		case 14:
			return "GTIN-14"
		}
	}
	if len(value) <= 43 && isCode39(strings.ToUpper(value)) {
		return "CODE39"
	}
	return "CODE128"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

func isCode39(s string) bool {
	for _, ch := range s {
		if !strings.ContainsRune(code39Charset, ch) {
			return false
		}
	}
	return true
}
