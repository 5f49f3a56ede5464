// Package gateway defines the contract between the router and the adapters
// that talk to each platform.
package gateway

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Gateway is the adapter to one platform.
type Gateway interface {
	// Metadata returns the tables the platform announces.
	Metadata(ctx context.Context) ([]*schema.Table, error)

	// Start runs the query against the platform, sending its records into
	// out. It blocks until it has sent exactly one terminal packet, either
	// LastPacket or ErrorPacket, or until the context is done. Records sent
	// before an ErrorPacket stand. Start never sends after it returns and
	// never closes out.
	Start(ctx context.Context, q query.Query, out chan<- query.Packet)
}

// Factory builds the gateway of a platform from its configuration.
type Factory func(platform string, config map[string]any) (Gateway, error)

// Registry maps gateway types to their factory. It is built once at start up
// and handed to the router.
type Registry map[string]Factory

// Register adds a factory for the gateway type.
func (r Registry) Register(gatewayType string, factory Factory) {
	r[gatewayType] = factory
}

// Types returns the registered gateway types, in order.
func (r Registry) Types() []string {
	return slices.Sorted(maps.Keys(r))
}

// New builds the gateway of the platform with the factory of the type.
func (r Registry) New(gatewayType string, platform string, config map[string]any) (Gateway, error) {
	factory, ok := r[gatewayType]
	if !ok {
		return nil, fmt.Errorf("unknown gateway type `%s` for platform `%s`", gatewayType, platform)
	}
	return factory(platform, config)
}

// DecodeConfig converts the generic configuration of a platform into the
// typed configuration of its gateway, following its yaml tags.
func DecodeConfig(raw map[string]any, into any) error {
	contents, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(contents, into)
}

// Set holds the gateways available to one execution, by platform.
type Set map[string]Gateway

// Gateway returns the gateway of the platform.
func (s Set) Gateway(platform string) (Gateway, bool) {
	gw, ok := s[platform]
	return gw, ok
}

// Platforms returns the platforms of the set, in order.
func (s Set) Platforms() []string {
	return slices.Sorted(maps.Keys(s))
}

// Send sends the packet unless the context is done first.
func Send(ctx context.Context, out chan<- query.Packet, p query.Packet) bool {
	select {
	case out <- p:
		return true
	case <-ctx.Done():
		return false
	}
}
