// Package dispatch fans generated briefings out to channels and drives each
// delivery through its state machine.
package dispatch

import (
	"context"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// Delivery is one attempt handed to a transport.
type Delivery struct {
	Log     *domain.DeliveryLog
	Channel *domain.Channel
	Content *domain.GeneratedContent
}

// Result reports what a transport attempt did.
type Result struct {
	// RecipientCount is the number of recipients reached, when the
	// transport knows it.
	RecipientCount *int
}

// Transport delivers content over one channel type. A failed attempt
// returns an error; the transport classifies it by wrapping
// domain.ErrDependencyUnavailable for transient failures. Only
// transport-classified transient failures are retried.
type Transport interface {
	Deliver(ctx context.Context, d Delivery) (*Result, error)
}

// Registry maps channel types to transports. Channel types without a
// registered transport are handled by external systems and left alone.
type Registry struct {
	transports map[domain.ChannelType]Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[domain.ChannelType]Transport)}
}

// Register binds a transport to a channel type.
func (r *Registry) Register(t domain.ChannelType, transport Transport) {
	r.transports[t] = transport
}

// Lookup returns the transport for a channel type, if any.
func (r *Registry) Lookup(t domain.ChannelType) (Transport, bool) {
	transport, ok := r.transports[t]
	return transport, ok
}
