package interceptor

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Header interceptor configuration keys.
const (
	KeyPreserveExisting = "preserveExisting"
	KeyHeader           = "header"
	KeyHostHeader       = "hostHeader"
	KeyUseIP            = "useIP"
	KeyKey              = "key"
	KeyValue            = "value"
)

// Timestamp sets a header to the current time in epoch milliseconds.
type Timestamp struct {
	noLifecycle
	header   string
	preserve bool
	now      func() time.Time
}

// Intercept stamps the event unless the header is preserved.
func (t *Timestamp) Intercept(evt *event.Event) *event.Event {
	if t.preserve {
		if _, ok := evt.Header(t.header); ok {
			return evt
		}
	}
	evt.SetHeader(t.header, strconv.FormatInt(t.now().UnixMilli(), 10))
	return evt
}

// InterceptBatch stamps every event.
func (t *Timestamp) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, t.Intercept)
}

// TimestampBuilder reads "header" (default "timestamp") and
// "preserveExisting" (default false).
type TimestampBuilder struct {
	header   string
	preserve bool
}

// Configure implements Builder.
func (b *TimestampBuilder) Configure(cfg config.Config) error {
	b.header = cfg.String(KeyHeader, "timestamp")
	b.preserve = cfg.Bool(KeyPreserveExisting, false)
	return nil
}

// Build implements Builder.
func (b *TimestampBuilder) Build() (Interceptor, error) {
	if b.header == "" {
		b.header = "timestamp"
	}
	return &Timestamp{header: b.header, preserve: b.preserve, now: time.Now}, nil
}

// Host sets a header to this host's IP address or host name.
type Host struct {
	noLifecycle
	header   string
	preserve bool
	host     string
}

// Intercept sets the host header unless it is preserved. If the local
// host could not be resolved the event is left unchanged.
func (h *Host) Intercept(evt *event.Event) *event.Event {
	if h.preserve {
		if _, ok := evt.Header(h.header); ok {
			return evt
		}
	}
	if h.host != "" {
		evt.SetHeader(h.header, h.host)
	}
	return evt
}

// InterceptBatch sets the host header on every event.
func (h *Host) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, h.Intercept)
}

// HostBuilder reads "hostHeader" (default "host"), "useIP" (default true)
// and "preserveExisting" (default false).
type HostBuilder struct {
	logging
	header   string
	useIP    bool
	preserve bool
}

// Configure implements Builder.
func (b *HostBuilder) Configure(cfg config.Config) error {
	b.header = cfg.String(KeyHostHeader, "host")
	b.useIP = cfg.Bool(KeyUseIP, true)
	b.preserve = cfg.Bool(KeyPreserveExisting, false)
	return nil
}

// Build resolves the local host once.
func (b *HostBuilder) Build() (Interceptor, error) {
	if b.header == "" {
		b.header = "host"
	}
	host, err := resolveHost(b.useIP)
	if err != nil {
		b.log().Warn("could not resolve local host, host header will not be set",
			slog.String("error", err.Error()))
	}
	return &Host{header: b.header, preserve: b.preserve, host: host}, nil
}

// resolveHost returns the local IPv4 address, or the canonical host name
// when useIP is false.
var resolveHost = func(useIP bool) (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", err
	}
	if !useIP {
		if cname, err := net.LookupCNAME(name); err == nil && cname != "" {
			return strings.TrimSuffix(cname, "."), nil
		}
		return name, nil
	}
	if addrs, err := net.LookupHost(name); err == nil && len(addrs) > 0 {
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
				return a, nil
			}
		}
		return addrs[0], nil
	}
	return interfaceAddr()
}

func interfaceAddr() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", errors.New("no non-loopback interface address")
}

// Static sets a fixed header.
type Static struct {
	noLifecycle
	key      string
	value    string
	preserve bool
}

// Intercept sets the header unless it is preserved.
func (s *Static) Intercept(evt *event.Event) *event.Event {
	if s.preserve {
		if _, ok := evt.Header(s.key); ok {
			return evt
		}
	}
	evt.SetHeader(s.key, s.value)
	return evt
}

// InterceptBatch sets the header on every event.
func (s *Static) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, s.Intercept)
}

// StaticBuilder reads "key" (default "key"), "value" (default "value")
// and "preserveExisting" (default true).
type StaticBuilder struct {
	logging
	key      string
	value    string
	preserve bool
}

// Configure implements Builder.
func (b *StaticBuilder) Configure(cfg config.Config) error {
	b.key = cfg.String(KeyKey, "key")
	b.value = cfg.String(KeyValue, "value")
	b.preserve = cfg.Bool(KeyPreserveExisting, true)
	return nil
}

// Build implements Builder.
func (b *StaticBuilder) Build() (Interceptor, error) {
	if b.key == "" {
		b.key = "key"
	}
	b.log().Debug("creating static interceptor",
		slog.String("key", b.key),
		slog.String("value", b.value),
		slog.Bool("preserve_existing", b.preserve),
	)
	return &Static{key: b.key, value: b.value, preserve: b.preserve}, nil
}
