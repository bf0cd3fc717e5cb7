package delivery

import (
	"fmt"

	"github.com/qtbui/notification-dispatch/internal/domain"
)

// Locator maps (channel, provider name) to a constructed adapter. Adapters
// are registered once at startup; resolution failures are configuration
// errors surfaced synchronously and never retried.
type Locator struct {
	adapters map[string]Adapter
	channels map[string]domain.Channel
}

// NewLocator returns an empty locator.
func NewLocator() *Locator {
	return &Locator{
		adapters: make(map[string]Adapter),
		channels: make(map[string]domain.Channel),
	}
}

// Register adds an adapter serving the given channel under its provider name.
func (l *Locator) Register(channel domain.Channel, adapter Adapter) {
	l.adapters[adapter.Name()] = adapter
	l.channels[adapter.Name()] = channel
}

// Resolve returns the adapter for the provider name, verifying it serves the
// requested channel.
func (l *Locator) Resolve(channel domain.Channel, provider string) (Adapter, error) {
	adapter, ok := l.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if l.channels[provider] != channel {
		return nil, &CapabilityError{Provider: provider, Channel: channel}
	}

	return adapter, nil
}
