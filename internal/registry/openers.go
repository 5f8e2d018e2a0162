package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gousb"

	"github.com/tillbridge/tillbridge/internal/model"
)

// ErrBluetoothNotBound is returned when a bluetooth printer has no RFCOMM
// device node configured.
var ErrBluetoothNotBound = errors.New("bluetooth printer has no bound RFCOMM device")

// dialTimeout bounds how long opening a network printer may take.
const dialTimeout = 5 * time.Second

// TransportOpener routes Open calls to the opener for the address transport.
// The set of transports is fixed at construction, not inspected per call.
type TransportOpener struct {
	Network   Opener
	USB       Opener
	Bluetooth Opener
}

// NewTransportOpener builds the default opener set. rfcommDevices maps a
// bluetooth address to its bound /dev/rfcomm* node.
func NewTransportOpener(rfcommDevices map[string]string) *TransportOpener {
	return &TransportOpener{
		Network:   &NetworkOpener{Timeout: dialTimeout},
		USB:       &USBOpener{},
		Bluetooth: &BluetoothOpener{Devices: rfcommDevices},
	}
}

func (t *TransportOpener) Open(ctx context.Context, addr model.PrinterAddress) (Conn, error) {
	switch addr.Transport {
	case model.TransportNetwork:
		return t.Network.Open(ctx, addr)
	case model.TransportUSB:
		return t.USB.Open(ctx, addr)
	case model.TransportBluetooth:
		return t.Bluetooth.Open(ctx, addr)
	default:
		return nil, fmt.Errorf("no opener for transport %q", addr.Transport)
	}
}

// NetworkOpener connects to raw ESC/POS TCP printers (usually port 9100).
type NetworkOpener struct {
	Timeout time.Duration
}

func (o *NetworkOpener) Open(ctx context.Context, addr model.PrinterAddress) (Conn, error) {
	d := net.Dialer{Timeout: o.Timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// BluetoothOpener writes to a bluetooth printer through its bound RFCOMM
// serial device node.
type BluetoothOpener struct {
	Devices map[string]string
}

func (o *BluetoothOpener) Open(_ context.Context, addr model.PrinterAddress) (Conn, error) {
	path, ok := o.Devices[addr.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBluetoothNotBound, addr.Address)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// USBOpener claims the printer's bulk OUT endpoint via libusb.
type USBOpener struct{}

func (o *USBOpener) Open(_ context.Context, addr model.PrinterAddress) (Conn, error) {
	usbCtx := gousb.NewContext()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(addr.VendorID), gousb.ID(addr.ProductID))
	if err != nil {
		usbCtx.Close()
		return nil, fmt.Errorf("opening usb device: %w", err)
	}
	if dev == nil {
		usbCtx.Close()
		return nil, fmt.Errorf("usb device %04x:%04x not present", addr.VendorID, addr.ProductID)
	}

	// The kernel's usblp driver usually owns the interface.
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("detaching kernel driver: %w", err)
	}

	intf, doneIntf, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("claiming usb interface: %w", err)
	}

	var out *gousb.OutEndpoint
	for _, desc := range intf.Setting.Endpoints {
		if desc.Direction == gousb.EndpointDirectionOut {
			out, err = intf.OutEndpoint(desc.Number)
			break
		}
	}
	if err != nil || out == nil {
		doneIntf()
		dev.Close()
		usbCtx.Close()
		if err == nil {
			err = errors.New("no bulk OUT endpoint")
		}
		return nil, fmt.Errorf("usb printer endpoint: %w", err)
	}

	return &usbConn{ctx: usbCtx, dev: dev, done: doneIntf, out: out}, nil
}

type usbConn struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
}

func (c *usbConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *usbConn) Close() error {
	c.done()
	err := c.dev.Close()
	if cerr := c.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}
