package smithy

import "fmt"

// TypeErasedBox carries an operation's typed input or output through the
// orchestrator, which never inspects the concrete type.
type TypeErasedBox struct {
	value any
}

// Erase boxes v.
func Erase(v any) TypeErasedBox {
	return TypeErasedBox{value: v}
}

// IsEmpty reports whether the box holds nothing.
func (b TypeErasedBox) IsEmpty() bool {
	return b.value == nil
}

// TypeName returns the dynamic type held by the box.
func (b TypeErasedBox) TypeName() string {
	return fmt.Sprintf("%T", b.value)
}

// Downcast returns the boxed value as T. Asking for the wrong type is a
// programming error and panics.
func Downcast[T any](b TypeErasedBox) T {
	v, ok := b.value.(T)
	if !ok {
		var want T
		panic(fmt.Sprintf("smithy: cannot downcast %T to %T", b.value, want))
	}
	return v
}

// TryDowncast returns the boxed value as T when the types match.
func TryDowncast[T any](b TypeErasedBox) (T, bool) {
	v, ok := b.value.(T)
	return v, ok
}
