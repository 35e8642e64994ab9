package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// DefaultMDNSService is the service type streaming servers advertise.
const DefaultMDNSService = "_ladio._tcp"

// MDNSFetcher browses the local network for streaming servers. A TXT record
// of the form "listeners=N" is read as the server load.
type MDNSFetcher struct {
	Service string
	Domain  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Fetch browses until Timeout elapses and returns every resolved entry
func (m *MDNSFetcher) Fetch(ctx context.Context) (List, error) {
	service := m.Service
	if service == "" {
		service = DefaultMDNSService
	}
	domain := m.Domain
	if domain == "" {
		domain = "local."
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan List, 1)
	go func() {
		var list List
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					entries = nil
					continue
				}
				if entry == nil {
					continue
				}
				if s, ok := serverFromEntry(entry); ok {
					logger.Debug("Discovered streaming server",
						slog.String("name", s.Name),
						slog.String("addr", s.Addr()),
					)
					list = append(list, s)
				}
			case <-browseCtx.Done():
				done <- list
				return
			}
		}
	}()

	if err := resolver.Browse(browseCtx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", service, err)
	}

	list := <-done
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func serverFromEntry(entry *zeroconf.ServiceEntry) (Server, bool) {
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return Server{}, false
	}

	s := Server{
		Name: entry.Instance,
		Host: host,
		Port: entry.Port,
	}
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "listeners="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				s.Listeners = n
			}
		}
	}
	return s, true
}
