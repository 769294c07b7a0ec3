package transport

import (
	"context"
	"fmt"
	"sync"

	"xrouter-network/internal/xrouter"
)

// Proxy is a swappable xrouter.Transport, letting main wire an App and its
// concrete PeerManagement in either order: the App is constructed first
// (it needs a Transport to hand to the engine/dispatcher), the
// PeerManagement second (it needs the App's HandleInbound as its stream
// callback). SetImpl closes the loop once both exist.
type Proxy struct {
	mu   sync.RWMutex
	impl xrouter.Transport
}

// SetImpl installs the concrete transport. Calls to Send made before this
// fail with an error rather than blocking.
func (p *Proxy) SetImpl(impl xrouter.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.impl = impl
}

// Send implements xrouter.Transport.
func (p *Proxy) Send(ctx context.Context, peer xrouter.PeerID, payload []byte) error {
	p.mu.RLock()
	impl := p.impl
	p.mu.RUnlock()
	if impl == nil {
		return fmt.Errorf("transport: not yet wired")
	}
	return impl.Send(ctx, peer, payload)
}

var _ xrouter.Transport = (*Proxy)(nil)
