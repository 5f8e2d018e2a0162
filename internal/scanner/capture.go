package scanner

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoScannerDevice is returned when no input device looks like a scanner.
var ErrNoScannerDevice = errors.New("no scanner input device found")

// CaptureSource delivers raw scanner characters. Run blocks until the
// context is cancelled or the device fails, calling feed for every character.
type CaptureSource interface {
	Name() string
	Run(ctx context.Context, feed func(ch rune)) error
}

// EvdevSource reads key events from a Linux /dev/input/event* device.
// HID scanners enumerate as keyboards, so the events are plain key-down
// scancodes; Run decodes them to characters.
type EvdevSource struct {
	path string
}

// NewEvdevSource captures from the given event device path.
func NewEvdevSource(path string) *EvdevSource {
	return &EvdevSource{path: path}
}

func (s *EvdevSource) Name() string { return s.path }

// evdevEvent mirrors the kernel's struct input_event on 64-bit platforms.
type evdevEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey       = 1
	evKeydown   = 1
	evdevRecord = 24
)

// Run reads the device until ctx is cancelled. Key-down events that map to a
// printable character (or Enter) are fed to the detector's callback.
func (s *EvdevSource) Run(ctx context.Context, feed func(ch rune)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening scanner device %s: %w", s.path, err)
	}

	// Reads block with no deadline support on event devices; closing the
	// file is the only way to unblock the loop on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-done:
			f.Close()
		}
	}()

	buf := make([]byte, evdevRecord)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading scanner device %s: %w", s.path, err)
		}

		ev := evdevEvent{
			Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
			Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
			Type:  binary.LittleEndian.Uint16(buf[16:18]),
			Code:  binary.LittleEndian.Uint16(buf[18:20]),
			Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
		}
		if ev.Type != evKey || ev.Value != evKeydown {
			continue
		}
		if ch, ok := scancodes[ev.Code]; ok {
			feed(ch)
		}
	}
}

// scancodes maps the key codes a scanner emits to characters. Letters are
// reported uppercase, matching what scanners send for CODE39/CODE128 values.
var scancodes = map[uint16]rune{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5',
	7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=', 28: '\n',
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T',
	21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G',
	35: 'H', 36: 'J', 37: 'K', 38: 'L',
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B',
	49: 'N', 50: 'M',
	52: '.', 53: '/', 57: ' ',
}

// FindScannerDevice looks for an input device whose name suggests a barcode
// scanner. Device names live in sysfs next to the event nodes.
func FindScannerDevice() (string, error) {
	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(matches) == 0 {
		return "", ErrNoScannerDevice
	}

	keywords := []string{"scanner", "barcode", "reader", "hid"}
	for _, path := range matches {
		name, err := os.ReadFile(filepath.Join(
			"/sys/class/input", filepath.Base(path), "device/name"))
		if err != nil {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(string(name)))
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return path, nil
			}
		}
	}
	return "", ErrNoScannerDevice
}
