package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultNetworkPort is the raw ESC/POS port most network printers listen on.
const DefaultNetworkPort = 9100

// PrinterAddress is the parsed form of a printer ID string.
//
//	usb:0x04b8:0x0202             vendor/product IDs
//	network:192.168.1.100:9100    host and port
//	bluetooth:AA:BB:CC:DD:EE:FF   device address
type PrinterAddress struct {
	Transport Transport

	// USB
	VendorID  uint16
	ProductID uint16

	// Network
	Host string
	Port int

	// Bluetooth
	Address string
}

// ParsePrinterID parses a printer ID string into its transport and connection
// parameters. The returned address serializes back to the canonical form of
// the same ID via String.
func ParsePrinterID(id string) (PrinterAddress, error) {
	scheme, rest, ok := strings.Cut(id, ":")
	if !ok || rest == "" {
		return PrinterAddress{}, &CodedError{
			Code:    CodeBadPrinterID,
			Message: fmt.Sprintf("malformed printer id %q", id),
			Kind:    ErrProtocol,
		}
	}

	switch Transport(scheme) {
	case TransportUSB:
		vid, pid, ok := strings.Cut(rest, ":")
		if !ok {
			return PrinterAddress{}, badPrinterID(id, "usb id needs vendor and product")
		}
		vendor, err := strconv.ParseUint(strings.TrimPrefix(vid, "0x"), 16, 16)
		if err != nil {
			return PrinterAddress{}, badPrinterID(id, "bad vendor id")
		}
		product, err := strconv.ParseUint(strings.TrimPrefix(pid, "0x"), 16, 16)
		if err != nil {
			return PrinterAddress{}, badPrinterID(id, "bad product id")
		}
		return PrinterAddress{
			Transport: TransportUSB,
			VendorID:  uint16(vendor),
			ProductID: uint16(product),
		}, nil

	case TransportNetwork:
		host := rest
		port := DefaultNetworkPort
		if i := strings.LastIndex(rest, ":"); i > 0 {
			p, err := strconv.Atoi(rest[i+1:])
			if err != nil || p < 1 || p > 65535 {
				return PrinterAddress{}, badPrinterID(id, "bad port")
			}
			host = rest[:i]
			port = p
		}
		if host == "" {
			return PrinterAddress{}, badPrinterID(id, "empty host")
		}
		return PrinterAddress{Transport: TransportNetwork, Host: host, Port: port}, nil

	case TransportBluetooth:
		return PrinterAddress{Transport: TransportBluetooth, Address: rest}, nil

	default:
		return PrinterAddress{}, badPrinterID(id, "unknown transport "+scheme)
	}
}

// String returns the canonical printer ID for the address. Parsing the result
// yields an equal PrinterAddress.
func (a PrinterAddress) String() string {
	switch a.Transport {
	case TransportUSB:
		return fmt.Sprintf("usb:%#06x:%#06x", a.VendorID, a.ProductID)
	case TransportNetwork:
		return fmt.Sprintf("network:%s:%d", a.Host, a.Port)
	case TransportBluetooth:
		return "bluetooth:" + a.Address
	default:
		return string(a.Transport)
	}
}

// USBPrinterID builds the canonical ID for a USB vendor/product pair.
func USBPrinterID(vendor, product uint16) string {
	return PrinterAddress{Transport: TransportUSB, VendorID: vendor, ProductID: product}.String()
}

// NetworkPrinterID builds the canonical ID for a network host and port.
func NetworkPrinterID(host string, port int) string {
	return PrinterAddress{Transport: TransportNetwork, Host: host, Port: port}.String()
}

// BluetoothPrinterID builds the canonical ID for a bluetooth address.
func BluetoothPrinterID(address string) string {
	return PrinterAddress{Transport: TransportBluetooth, Address: address}.String()
}

func badPrinterID(id, detail string) error {
	return &CodedError{
		Code:    CodeBadPrinterID,
		Message: fmt.Sprintf("malformed printer id %q: %s", id, detail),
		Kind:    ErrProtocol,
	}
}
