package smithy

import (
	"fmt"
	"reflect"
	"strings"
)

// unsetMarker records an explicit unset so that older layers are shadowed.
type unsetMarker struct{}

// appendList holds the items stored with StoreAppend for one type in one layer.
type appendList[T any] struct {
	items   []T
	cleared bool
}

// Layer is a named set of typed configuration values. A Layer is mutable until
// it is frozen; frozen layers are shared by reference and never change again.
type Layer struct {
	name   string
	props  map[reflect.Type]any
	frozen bool
}

// NewLayer returns an empty, mutable layer.
func NewLayer(name string) *Layer {
	return &Layer{
		name:  name,
		props: make(map[reflect.Type]any),
	}
}

// Name returns the layer name.
func (l *Layer) Name() string {
	return l.name
}

// Len returns the number of keys stored in the layer, including unsets.
func (l *Layer) Len() int {
	return len(l.props)
}

// Freeze marks the layer read-only and returns its frozen view.
func (l *Layer) Freeze() *FrozenLayer {
	l.frozen = true
	return &FrozenLayer{layer: l}
}

// clone returns a mutable copy of the layer.
func (l *Layer) clone() *Layer {
	c := NewLayer(l.name)
	for k, v := range l.props {
		c.props[k] = v
	}
	return c
}

func (l *Layer) put(key reflect.Type, value any) {
	if l.frozen {
		panic(fmt.Sprintf("smithy: layer %q is frozen", l.name))
	}
	l.props[key] = value
}

// FrozenLayer is an immutable layer that can be pushed onto a ConfigBag.
type FrozenLayer struct {
	layer *Layer
}

// Name returns the layer name.
func (f *FrozenLayer) Name() string {
	if f == nil {
		return ""
	}
	return f.layer.name
}

// StorePut stores value in the layer under the type T, replacing any previous value.
func StorePut[T any](l *Layer, value T) {
	l.put(reflect.TypeFor[T](), value)
}

// StoreOrUnset stores *value, or records an explicit unset when value is nil.
// An explicit unset hides values of T stored in older layers.
func StoreOrUnset[T any](l *Layer, value *T) {
	if value == nil {
		Unset[T](l)
		return
	}
	StorePut(l, *value)
}

// Unset records an explicit unset for T in the layer.
func Unset[T any](l *Layer) {
	l.put(reflect.TypeFor[T](), unsetMarker{})
}

// StoreAppend adds value to the list of T items held by the layer.
func StoreAppend[T any](l *Layer, value T) {
	key := reflect.TypeFor[appendList[T]]()
	list, _ := l.props[key].(*appendList[T])
	if list == nil {
		list = &appendList[T]{}
	}
	list.items = append(list.items, value)
	l.put(key, list)
}

// ClearAll hides every T item appended in older layers.
func ClearAll[T any](l *Layer) {
	l.put(reflect.TypeFor[appendList[T]](), &appendList[T]{cleared: true})
}

// LoadFromLayer reads T from a single layer.
func LoadFromLayer[T any](l *Layer) (T, bool) {
	var zero T
	v, ok := l.props[reflect.TypeFor[T]()]
	if !ok {
		return zero, false
	}
	if _, unset := v.(unsetMarker); unset {
		return zero, false
	}
	return v.(T), true
}

// ConfigBag is a stack of layers. Reads scan from the newest layer down and
// return the first value found. Writes only ever touch the interceptor state
// layer at the top of the stack.
type ConfigBag struct {
	head *Layer
	tail []*FrozenLayer
}

// NewConfigBag returns a bag holding only an empty interceptor state layer.
func NewConfigBag() *ConfigBag {
	return &ConfigBag{head: NewLayer("interceptor_state")}
}

// ConfigBagOf builds a bag from frozen layers, oldest first.
func ConfigBagOf(layers ...*FrozenLayer) *ConfigBag {
	bag := NewConfigBag()
	for _, l := range layers {
		bag.PushLayer(l)
	}
	return bag
}

// PushLayer adds a frozen layer above every previously pushed layer. The
// interceptor state layer always stays on top.
func (b *ConfigBag) PushLayer(layer *FrozenLayer) {
	if layer == nil {
		return
	}
	b.tail = append(b.tail, layer)
}

// InterceptorState returns the mutable top layer.
func (b *ConfigBag) InterceptorState() *Layer {
	return b.head
}

// Depth returns the number of layers, including the interceptor state.
func (b *ConfigBag) Depth() int {
	return len(b.tail) + 1
}

// String lists layer names from the top of the stack down.
func (b *ConfigBag) String() string {
	names := make([]string, 0, b.Depth())
	b.each(func(l *Layer) bool {
		names = append(names, l.name)
		return true
	})
	return "ConfigBag[" + strings.Join(names, " > ") + "]"
}

func (b *ConfigBag) each(fn func(*Layer) bool) {
	if !fn(b.head) {
		return
	}
	for i := len(b.tail) - 1; i >= 0; i-- {
		if !fn(b.tail[i].layer) {
			return
		}
	}
}

// Load returns the newest value of T in the bag.
func Load[T any](b *ConfigBag) (T, bool) {
	key := reflect.TypeFor[T]()
	var (
		result T
		found  bool
	)
	b.each(func(l *Layer) bool {
		v, ok := l.props[key]
		if !ok {
			return true
		}
		if _, unset := v.(unsetMarker); !unset {
			result, found = v.(T), true
		}
		return false
	})
	return result, found
}

// LoadOr returns the newest value of T, or def when none is stored.
func LoadOr[T any](b *ConfigBag, def T) T {
	if v, ok := Load[T](b); ok {
		return v
	}
	return def
}

// LoadAll returns every appended T, newest first. Accumulation stops at a layer
// where ClearAll was called.
func LoadAll[T any](b *ConfigBag) []T {
	key := reflect.TypeFor[appendList[T]]()
	var out []T
	b.each(func(l *Layer) bool {
		list, ok := l.props[key].(*appendList[T])
		if !ok {
			return true
		}
		for i := len(list.items) - 1; i >= 0; i-- {
			out = append(out, list.items[i])
		}
		return !list.cleared
	})
	return out
}
