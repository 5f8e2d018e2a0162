package discovery

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/tillbridge/tillbridge/internal/model"
)

// knownPrinterVendors maps USB vendor IDs of common ESC/POS printer makers
// to a display name. Devices from other vendors are ignored: enumerating a
// POS till turns up card readers, scanners and hubs we must not list as
// printers.
var knownPrinterVendors = map[uint16]string{
	0x04b8: "Epson",
	0x0519: "Star Micronics",
	0x0dd4: "Custom",
	0x0fe6: "Bixolon",
	0x0493: "Citizen",
	0x20d1: "Sewoo",
	0x0416: "Winbond (POS)",
	0x0483: "STMicroelectronics",
	0x1fc9: "NXP (POS)",
	0x28e9: "Rongta",
	0x0c2e: "Munbyn",
	0x1a86: "QinHeng (CH340 serial)",
}

// USBProvider finds ESC/POS printers on the USB bus.
type USBProvider struct{}

func (p *USBProvider) Name() string { return "usb" }

func (p *USBProvider) Discover(_ context.Context) ([]model.PrinterDescriptor, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var printers []model.PrinterDescriptor

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, known := knownPrinterVendors[uint16(desc.Vendor)]
		return known
	})
	for _, dev := range devices {
		desc := dev.Desc
		vendor := uint16(desc.Vendor)
		product := uint16(desc.Product)

		name, perr := dev.Product()
		if perr != nil || name == "" {
			name = knownPrinterVendors[vendor] + " Printer"
		}

		printers = append(printers, model.PrinterDescriptor{
			ID:         model.USBPrinterID(vendor, product),
			Name:       name,
			Transport:  model.TransportUSB,
			Status:     model.StatusReady,
			PaperWidth: 80,
		})
		dev.Close()
	}
	if err != nil && len(printers) == 0 {
		return nil, fmt.Errorf("enumerating usb devices: %w", err)
	}

	return printers, nil
}
