// Package escpos builds ESC/POS command streams for thermal printers. It
// covers the subset the bridge needs: text styling, paper cut, cash drawer
// kick pulses, EAN-13 barcodes and 1-bit raster images.
package escpos

import (
	"bytes"
	"image"
)

// Alignment values for ESC a.
const (
	AlignLeft   = 0
	AlignCenter = 1
	AlignRight  = 2
)

// Style is the active text style. Zero value is plain left-aligned text.
type Style struct {
	Align        int
	Bold         bool
	DoubleHeight bool
	DoubleWidth  bool
}

// Document accumulates ESC/POS commands for one print job.
type Document struct {
	buf  bytes.Buffer
	cols int
}

// NewDocument starts a document with the printer initialized (ESC @).
// columns is the character width of the paper, typically 32 for 58 mm and
// 48 for 80 mm paper.
func NewDocument(columns int) *Document {
	if columns <= 0 {
		columns = 32
	}
	d := &Document{cols: columns}
	d.buf.Write([]byte{0x1b, 0x40}) // ESC @ initialize
	return d
}

// Columns returns the character width the document formats against.
func (d *Document) Columns() int { return d.cols }

// SetStyle switches the active text style.
func (d *Document) SetStyle(s Style) *Document {
	d.buf.Write([]byte{0x1b, 0x61, byte(s.Align)}) // ESC a
	if s.Bold {
		d.buf.Write([]byte{0x1b, 0x45, 0x01}) // ESC E
	} else {
		d.buf.Write([]byte{0x1b, 0x45, 0x00})
	}
	var size byte
	if s.DoubleHeight {
		size |= 0x01
	}
	if s.DoubleWidth {
		size |= 0x10
	}
	d.buf.Write([]byte{0x1d, 0x21, size}) // GS !
	return d
}

// Text appends raw text. The caller supplies newlines.
func (d *Document) Text(s string) *Document {
	d.buf.WriteString(s)
	return d
}

// Line appends text followed by a newline.
func (d *Document) Line(s string) *Document {
	d.buf.WriteString(s)
	d.buf.WriteByte('\n')
	return d
}

// Divider appends a full-width line of ch.
func (d *Document) Divider(ch byte) *Document {
	d.buf.Write(bytes.Repeat([]byte{ch}, d.cols))
	d.buf.WriteByte('\n')
	return d
}

// PaddedLine appends left text with right text pushed to the last column:
// "Label         12.50". At least one space always separates the two.
func (d *Document) PaddedLine(left, right string) *Document {
	pad := d.cols - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	d.buf.WriteString(left)
	d.buf.Write(bytes.Repeat([]byte{' '}, pad))
	d.buf.WriteString(right)
	d.buf.WriteByte('\n')
	return d
}

// Feed advances the paper n lines (ESC d).
func (d *Document) Feed(n int) *Document {
	d.buf.Write([]byte{0x1b, 0x64, byte(n)})
	return d
}

// Cut feeds and performs a partial cut (GS V A).
func (d *Document) Cut() *Document {
	d.buf.Write([]byte{0x1b, 0x64, 0x03})
	d.buf.Write([]byte{0x1d, 0x56, 0x41, 0x00})
	return d
}

// Barcode prints an EAN-13 barcode with human-readable text below (GS k
// function B). The value is passed through unvalidated; the printer rejects
// bad check digits itself.
func (d *Document) Barcode(value string) *Document {
	d.buf.Write([]byte{0x1d, 0x68, 0x50}) // GS h: height 80 dots
	d.buf.Write([]byte{0x1d, 0x77, 0x02}) // GS w: module width 2
	d.buf.Write([]byte{0x1d, 0x48, 0x02}) // GS H: HRI below
	// GS k function 67 (EAN13), length-prefixed
	d.buf.Write([]byte{0x1d, 0x6b, 0x43, byte(len(value))})
	d.buf.WriteString(value)
	return d
}

// Raster appends a 1-bit raster image (GS v 0). The image is thresholded to
// black and white; width is truncated to a multiple of 8 dots.
func (d *Document) Raster(img image.Image) *Document {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Raster width must be a whole number of bytes.
	width -= width % 8
	if width <= 0 || height <= 0 {
		return d
	}

	rowBytes := width / 8
	raster := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (r + g + b) / 3
			if gray < 0x8000 {
				raster[y*rowBytes+x/8] |= 1 << (7 - x%8)
			}
		}
	}

	d.buf.Write([]byte{
		0x1d, 0x76, 0x30, 0x00,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	})
	d.buf.Write(raster)
	return d
}

// Bytes returns the accumulated command stream.
func (d *Document) Bytes() []byte { return d.buf.Bytes() }

// Cash drawer kick pulses (ESC p <pin> <on> <off>). Drawers hang off the
// printer's DK port on connector pin 2 or 5.
var (
	kickPin2 = []byte{0x1b, 0x70, 0x00, 0x19, 0x32}
	kickPin5 = []byte{0x1b, 0x70, 0x01, 0x19, 0x32}
)

// KickPulse returns the drawer kick command for the given connector pin.
// Any pin other than 5 selects pin 2.
func KickPulse(pin int) []byte {
	if pin == 5 {
		return append([]byte(nil), kickPin5...)
	}
	return append([]byte(nil), kickPin2...)
}

// ColumnsForPaperWidth maps a paper width in millimeters to a character
// column count for the standard font.
func ColumnsForPaperWidth(mm int) int {
	if mm >= 80 {
		return 48
	}
	return 32
}
