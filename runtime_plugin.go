package smithy

import (
	"fmt"
)

// Order determines when a runtime plugin runs relative to the others at the
// same level.
type Order int

const (
	// OrderDefaults plugins run first and provide fallback components.
	OrderDefaults Order = iota
	// OrderOverrides is the default order for plugins.
	OrderOverrides
	// OrderNestedComponents plugins run last so they can wrap components
	// configured by earlier plugins.
	OrderNestedComponents
)

func (o Order) String() string {
	switch o {
	case OrderDefaults:
		return "Defaults"
	case OrderOverrides:
		return "Overrides"
	case OrderNestedComponents:
		return "NestedComponents"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// RuntimePlugin contributes a config layer and component overrides.
type RuntimePlugin interface {
	Order() Order
	// Config returns a frozen layer to push onto the bag, or nil.
	Config() *FrozenLayer
	// RuntimeComponents returns overrides given the components merged so far.
	// A nil builder contributes nothing.
	RuntimeComponents(current *RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error)
}

// StaticRuntimePlugin is a plugin whose contributions are fixed at
// construction.
type StaticRuntimePlugin struct {
	order      Order
	config     *FrozenLayer
	components *RuntimeComponentsBuilder
}

// NewStaticRuntimePlugin returns a plugin with order OrderOverrides and no
// contributions.
func NewStaticRuntimePlugin() *StaticRuntimePlugin {
	return &StaticRuntimePlugin{order: OrderOverrides}
}

// WithOrder sets the plugin order.
func (p *StaticRuntimePlugin) WithOrder(o Order) *StaticRuntimePlugin {
	p.order = o
	return p
}

// WithConfig sets the config layer.
func (p *StaticRuntimePlugin) WithConfig(layer *FrozenLayer) *StaticRuntimePlugin {
	p.config = layer
	return p
}

// WithRuntimeComponents sets the component overrides.
func (p *StaticRuntimePlugin) WithRuntimeComponents(b *RuntimeComponentsBuilder) *StaticRuntimePlugin {
	p.components = b
	return p
}

func (p *StaticRuntimePlugin) Order() Order { return p.order }

func (p *StaticRuntimePlugin) Config() *FrozenLayer { return p.config }

func (p *StaticRuntimePlugin) RuntimeComponents(*RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error) {
	return p.components, nil
}

// RuntimePluginFunc adapts a function to a plugin with no config layer.
type RuntimePluginFunc struct {
	PluginOrder Order
	Fn          func(current *RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error)
}

func (f RuntimePluginFunc) Order() Order         { return f.PluginOrder }
func (f RuntimePluginFunc) Config() *FrozenLayer { return nil }

func (f RuntimePluginFunc) RuntimeComponents(current *RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error) {
	return f.Fn(current)
}

// insertPlugin places p after the last plugin whose order is not greater than
// p's, which keeps the list sorted by order and stable for equal orders.
func insertPlugin(list []RuntimePlugin, p RuntimePlugin) []RuntimePlugin {
	at := 0
	for i, existing := range list {
		if existing.Order() <= p.Order() {
			at = i + 1
		}
	}
	list = append(list, nil)
	copy(list[at+1:], list[at:])
	list[at] = p
	return list
}

// RuntimePlugins holds the client-level and operation-level plugins for an
// invocation. Client plugins are always applied before operation plugins.
type RuntimePlugins struct {
	client    []RuntimePlugin
	operation []RuntimePlugin
}

// NewRuntimePlugins returns an empty plugin set.
func NewRuntimePlugins() *RuntimePlugins {
	return &RuntimePlugins{}
}

// WithClientPlugin adds a client-level plugin.
func (rp *RuntimePlugins) WithClientPlugin(p RuntimePlugin) *RuntimePlugins {
	rp.client = insertPlugin(rp.client, p)
	return rp
}

// WithOperationPlugin adds an operation-level plugin.
func (rp *RuntimePlugins) WithOperationPlugin(p RuntimePlugin) *RuntimePlugins {
	rp.operation = insertPlugin(rp.operation, p)
	return rp
}

// ClientPlugins returns the client plugins in application order.
func (rp *RuntimePlugins) ClientPlugins() []RuntimePlugin { return rp.client }

// OperationPlugins returns the operation plugins in application order.
func (rp *RuntimePlugins) OperationPlugins() []RuntimePlugin { return rp.operation }

// ApplyClientConfiguration pushes every client plugin's layer onto cfg and
// folds their components together.
func (rp *RuntimePlugins) ApplyClientConfiguration(cfg *ConfigBag) (*RuntimeComponentsBuilder, error) {
	return applyPlugins(rp.client, cfg, NewRuntimeComponentsBuilder("client runtime components"))
}

// ApplyOperationConfiguration does the same for operation plugins, starting
// from base so that nested plugins can wrap client components.
func (rp *RuntimePlugins) ApplyOperationConfiguration(cfg *ConfigBag, base *RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error) {
	if base == nil {
		base = NewRuntimeComponentsBuilder("operation runtime components")
	}
	return applyPlugins(rp.operation, cfg, base)
}

func applyPlugins(plugins []RuntimePlugin, cfg *ConfigBag, merged *RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error) {
	for _, p := range plugins {
		if layer := p.Config(); layer != nil {
			cfg.PushLayer(layer)
		}
		contributed, err := p.RuntimeComponents(merged)
		if err != nil {
			return nil, err
		}
		merged = merged.MergeFrom(contributed)
	}
	return merged, nil
}
