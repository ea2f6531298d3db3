package amcp

import (
	"github.com/miras-broadcast/miras-core/internal/device"
)

// Family is the device family name handled by this package.
const Family = "caspar"

// DefaultPort is the AMCP server port CasparCG listens on.
const DefaultPort = 5250

// Register installs the AMCP session factory into a registry.
func Register(registry *device.Registry) {
	registry.RegisterFamily(Family, NewSession)
}

// NewSession builds a session speaking AMCP over TCP. It satisfies
// device.Factory. The port is required; config loading fills in
// DefaultPort for caspar devices that omit it.
func NewSession(cfg device.Config, opts device.SessionOptions) (*device.Session, error) {
	transport := newTCPTransport(cfg.Host, cfg.Port)
	return device.NewSession(cfg, transport, NewCodec(), opts), nil
}
