package cast

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/mmcdole/kinocast/internal/domain"
)

const (
	serviceName = "_googlecast._tcp"

	// DefaultDiscoveryTimeout is the length of one discovery round.
	DefaultDiscoveryTimeout = 3 * time.Second
)

// queryFunc runs one mDNS query round, writing results to params.Entries.
type queryFunc func(ctx context.Context, params *mdns.QueryParam) error

// Browser finds cast receivers on the local network.
type Browser struct {
	timeout time.Duration
	query   queryFunc
	logger  *slog.Logger
}

// NewBrowser creates a Browser. Each discovery round lasts timeout.
func NewBrowser(timeout time.Duration, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	return &Browser{
		timeout: timeout,
		query:   queryContext,
		logger:  logger,
	}
}

// Scan runs a single discovery round and returns the receivers found.
func (b *Browser) Scan(ctx context.Context) ([]domain.ReceiverDevice, error) {
	var devices []domain.ReceiverDevice
	seen := make(map[string]bool)
	err := b.round(ctx, func(d domain.ReceiverDevice) {
		if seen[d.ID] {
			return
		}
		seen[d.ID] = true
		devices = append(devices, d)
	})
	return devices, err
}

// Discover repeats discovery rounds until ctx is cancelled. Each receiver is
// delivered once per call. The channel is closed when discovery stops, so a
// new call restarts discovery from scratch.
func (b *Browser) Discover(ctx context.Context) <-chan domain.ReceiverDevice {
	out := make(chan domain.ReceiverDevice)
	go func() {
		defer close(out)
		seen := make(map[string]bool)
		for ctx.Err() == nil {
			err := b.round(ctx, func(d domain.ReceiverDevice) {
				if seen[d.ID] {
					return
				}
				seen[d.ID] = true
				select {
				case out <- d:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				b.logger.Warn("discovery round failed", "error", err)
				select {
				case <-time.After(b.timeout):
				case <-ctx.Done():
				}
			}
		}
	}()
	return out
}

func (b *Browser) round(ctx context.Context, found func(domain.ReceiverDevice)) error {
	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range entries {
			d, ok := parseEntry(e)
			if !ok {
				b.logger.Debug("ignoring incomplete receiver entry", "name", e.Name)
				continue
			}
			found(d)
		}
	}()

	params := mdns.DefaultParams(serviceName)
	params.Entries = entries
	params.Timeout = b.timeout
	params.DisableIPv6 = true

	err := b.query(ctx, params)
	close(entries)
	<-collected
	return err
}

// queryContext runs mdns.Query, which has no context support. The round is
// bounded by params.Timeout; entries arriving after ctx is done are dropped.
func queryContext(ctx context.Context, params *mdns.QueryParam) error {
	out := params.Entries
	in := make(chan *mdns.ServiceEntry, cap(out)+1)
	p := *params
	p.Entries = in

	done := make(chan error, 1)
	go func() { done <- mdns.Query(&p) }()

	forward := func(e *mdns.ServiceEntry) {
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- e:
		case <-ctx.Done():
		}
	}
	for {
		select {
		case e := <-in:
			forward(e)
		case err := <-done:
			for {
				select {
				case e := <-in:
					forward(e)
				default:
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					return err
				}
			}
		}
	}
}

// parseEntry maps an mDNS answer to a receiver using its TXT record
// (id = device id, fn = friendly name, md = model).
func parseEntry(e *mdns.ServiceEntry) (domain.ReceiverDevice, bool) {
	if e == nil {
		return domain.ReceiverDevice{}, false
	}

	txt := make(map[string]string, len(e.InfoFields))
	for _, field := range e.InfoFields {
		k, v, ok := strings.Cut(field, "=")
		if ok {
			txt[k] = v
		}
	}

	d := domain.ReceiverDevice{
		ID:           txt["id"],
		FriendlyName: txt["fn"],
		Model:        txt["md"],
		Port:         e.Port,
	}
	switch {
	case e.AddrV4 != nil:
		d.Host = e.AddrV4.String()
	case e.AddrV6 != nil:
		d.Host = e.AddrV6.String()
	}

	if d.ID == "" || d.Host == "" || d.Port == 0 {
		return domain.ReceiverDevice{}, false
	}
	if d.FriendlyName == "" {
		d.FriendlyName = strings.TrimSuffix(e.Name, "."+serviceName+".local.")
	}
	return d, true
}
