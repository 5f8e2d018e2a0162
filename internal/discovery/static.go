package discovery

import (
	"context"

	"github.com/tillbridge/tillbridge/internal/model"
)

// StaticProvider contributes printers declared in configuration. This is how
// paired Bluetooth printers and fixed-address network printers that answer no
// discovery protocol make it into every sweep.
type StaticProvider struct {
	Printers []model.PrinterDescriptor
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Discover(context.Context) ([]model.PrinterDescriptor, error) {
	out := make([]model.PrinterDescriptor, len(p.Printers))
	copy(out, p.Printers)
	for i := range out {
		if out[i].Status == "" {
			out[i].Status = model.StatusReady
		}
		if out[i].PaperWidth == 0 {
			out[i].PaperWidth = 80
		}
		if out[i].Transport == "" {
			if addr, err := model.ParsePrinterID(out[i].ID); err == nil {
				out[i].Transport = addr.Transport
			}
		}
	}
	return out, nil
}
