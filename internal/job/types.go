package job

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Mode selects the handler that processes a job.
type Mode string

// Supported job modes.
const (
	ModeSource       Mode = "source"
	ModeTurnstileMin Mode = "turnstile-min"
	ModeTurnstileMax Mode = "turnstile-max"
	ModeWAFSession   Mode = "waf-session"
)

// Modes lists every mode the dispatcher routes.
var Modes = []Mode{ModeSource, ModeTurnstileMin, ModeTurnstileMax, ModeWAFSession}

// Known reports whether m is one of the routed modes.
func (m Mode) Known() bool {
	switch m {
	case ModeSource, ModeTurnstileMin, ModeTurnstileMax, ModeWAFSession:
		return true
	default:
		return false
	}
}

// Proxy describes an upstream proxy a handler should route browser traffic through.
type Proxy struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Server returns the proxy address in scheme://host:port form. Hosts that already
// carry a scheme keep it; everything else is treated as an HTTP proxy.
func (p *Proxy) Server() string {
	if p == nil || p.Host == "" {
		return ""
	}
	scheme, host := "http", p.Host
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i], host[i+3:]
	}
	if p.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}
	return scheme + "://" + host
}

// HasCredentials reports whether the proxy requires authentication.
func (p *Proxy) HasCredentials() bool {
	return p != nil && (p.Username != "" || p.Password != "")
}

// Descriptor is an inbound job request. The well-known fields are decoded for the
// gateway and handlers; the full document is retained so handlers can bind any
// mode-specific parameters the gateway does not interpret.
type Descriptor struct {
	Mode      Mode   `json:"mode"`
	AuthToken string `json:"authToken,omitempty"`
	URL       string `json:"url,omitempty"`
	SiteKey   string `json:"siteKey,omitempty"`
	Proxy     *Proxy `json:"proxy,omitempty"`

	raw json.RawMessage
}

// Parse decodes a descriptor from a JSON document that already passed validation.
func Parse(raw []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode job descriptor: %w", err)
	}
	d.raw = append(json.RawMessage(nil), raw...)
	return d, nil
}

// Raw returns the original request document.
func (d Descriptor) Raw() json.RawMessage {
	return d.raw
}

// Bind decodes the original request document into v.
func (d Descriptor) Bind(v any) error {
	if len(d.raw) == 0 {
		return fmt.Errorf("job descriptor has no raw payload")
	}
	if err := json.Unmarshal(d.raw, v); err != nil {
		return fmt.Errorf("bind job parameters: %w", err)
	}
	return nil
}

// Result is what a handler produces. Value carries scalar results (page source,
// tokens); Fields carries object results that are merged into the envelope.
type Result struct {
	Value  string
	Fields map[string]any
}
