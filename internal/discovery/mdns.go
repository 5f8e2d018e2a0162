package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/tillbridge/tillbridge/internal/model"
)

// mdnsServiceTypes are the printer service types worth browsing: raw
// port-9100 printing and IPP.
var mdnsServiceTypes = []string{
	"_pdl-datastream._tcp",
	"_ipp._tcp",
}

// MDNSProvider finds network printers announcing themselves over
// mDNS/Bonjour.
type MDNSProvider struct{}

func (p *MDNSProvider) Name() string { return "mdns" }

func (p *MDNSProvider) Discover(ctx context.Context) ([]model.PrinterDescriptor, error) {
	var printers []model.PrinterDescriptor

	for _, serviceType := range mdnsServiceTypes {
		found, err := browse(ctx, serviceType)
		if err != nil {
			return printers, fmt.Errorf("browsing %s: %w", serviceType, err)
		}
		printers = append(printers, found...)
	}
	return printers, nil
}

func browse(ctx context.Context, serviceType string) ([]model.PrinterDescriptor, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, serviceType, "local.", entries); err != nil {
		return nil, err
	}

	// Browse closes the channel when the context expires.
	var printers []model.PrinterDescriptor
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}

		host := entry.AddrIPv4[0].String()
		port := entry.Port
		if port == 0 {
			port = model.DefaultNetworkPort
		}

		name := entry.Instance
		if name == "" {
			name = "Network Printer (" + host + ")"
		}
		name = strings.TrimSuffix(name, ".")

		printers = append(printers, model.PrinterDescriptor{
			ID:         model.NetworkPrinterID(host, port),
			Name:       name,
			Transport:  model.TransportNetwork,
			Status:     model.StatusReady,
			PaperWidth: 80,
		})
	}
	return printers, nil
}
