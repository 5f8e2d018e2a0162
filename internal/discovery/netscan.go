package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tillbridge/tillbridge/internal/model"
)

const (
	probeWorkers = 50
	probeTimeout = 300 * time.Millisecond
)

// SubnetProvider finds network printers by probing port 9100 across the
// local /24. Slow compared to mDNS, so it is opt-in via configuration.
type SubnetProvider struct{}

func (p *SubnetProvider) Name() string { return "subnet" }

func (p *SubnetProvider) Discover(ctx context.Context) ([]model.PrinterDescriptor, error) {
	localIP, err := detectLocalIP()
	if err != nil {
		return nil, fmt.Errorf("detecting local address: %w", err)
	}
	parts := strings.Split(localIP, ".")
	subnet := strings.Join(parts[:3], ".")

	ipChan := make(chan string, 256)
	foundChan := make(chan string, 256)
	var wg sync.WaitGroup

	for i := 0; i < probeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ipChan {
				if probe(ctx, ip, model.DefaultNetworkPort) {
					foundChan <- ip
				}
			}
		}()
	}

	go func() {
		defer close(ipChan)
		for i := 1; i <= 254; i++ {
			select {
			case ipChan <- fmt.Sprintf("%s.%d", subnet, i):
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(foundChan)
	}()

	var printers []model.PrinterDescriptor
	for ip := range foundChan {
		printers = append(printers, model.PrinterDescriptor{
			ID:         model.NetworkPrinterID(ip, model.DefaultNetworkPort),
			Name:       "Network Printer (" + ip + ")",
			Transport:  model.TransportNetwork,
			Status:     model.StatusReady,
			PaperWidth: 80,
		})
	}

	// Worker completion order is arbitrary; keep sweeps comparable.
	sort.Slice(printers, func(i, j int) bool { return printers[i].ID < printers[j].ID })
	return printers, ctx.Err()
}

func probe(ctx context.Context, ip string, port int) bool {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func detectLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}
