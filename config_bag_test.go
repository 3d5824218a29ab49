package smithy

import (
	"strings"
	"testing"
)

type regionSetting string
type retryLimit int
type featureFlag string

func TestConfigBagNewestLayerWins(t *testing.T) {
	base := NewLayer("base")
	StorePut(base, regionSetting("us-east-1"))
	StorePut(base, retryLimit(3))

	override := NewLayer("override")
	StorePut(override, regionSetting("eu-west-1"))

	bag := ConfigBagOf(base.Freeze(), override.Freeze())

	if got, _ := Load[regionSetting](bag); got != "eu-west-1" {
		t.Errorf("Expected eu-west-1, got %s", got)
	}
	if got, _ := Load[retryLimit](bag); got != 3 {
		t.Errorf("Expected value from the base layer, got %d", got)
	}
	if _, ok := Load[featureFlag](bag); ok {
		t.Error("Expected missing key to report not found")
	}
	if got := LoadOr(bag, featureFlag("off")); got != "off" {
		t.Errorf("Expected default off, got %s", got)
	}
}

func TestConfigBagExplicitUnset(t *testing.T) {
	base := NewLayer("base")
	StorePut(base, regionSetting("us-east-1"))

	override := NewLayer("override")
	StoreOrUnset[regionSetting](override, nil)

	bag := ConfigBagOf(base.Freeze(), override.Freeze())
	if v, ok := Load[regionSetting](bag); ok {
		t.Errorf("Expected unset to hide the base value, got %s", v)
	}

	value := regionSetting("ap-south-1")
	StoreOrUnset(bag.InterceptorState(), &value)
	if got, _ := Load[regionSetting](bag); got != "ap-south-1" {
		t.Errorf("Expected interceptor state value, got %s", got)
	}
}

func TestConfigBagInterceptorStateOnTop(t *testing.T) {
	bag := NewConfigBag()
	StorePut(bag.InterceptorState(), retryLimit(1))

	later := NewLayer("later")
	StorePut(later, retryLimit(9))
	bag.PushLayer(later.Freeze())

	if got, _ := Load[retryLimit](bag); got != 1 {
		t.Errorf("Expected interceptor state to stay on top, got %d", got)
	}
	if bag.Depth() != 2 {
		t.Errorf("Expected depth 2, got %d", bag.Depth())
	}
	if s := bag.String(); s != "ConfigBag[interceptor_state > later]" {
		t.Errorf("Expected layer names top-down, got %s", s)
	}
}

func TestConfigBagAppendAccumulates(t *testing.T) {
	first := NewLayer("first")
	StoreAppend(first, featureFlag("a"))
	StoreAppend(first, featureFlag("b"))

	second := NewLayer("second")
	StoreAppend(second, featureFlag("c"))

	bag := ConfigBagOf(first.Freeze(), second.Freeze())
	StoreAppend(bag.InterceptorState(), featureFlag("d"))

	got := LoadAll[featureFlag](bag)
	want := []featureFlag{"d", "c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected item %d to be %s, got %s", i, want[i], got[i])
		}
	}
}

func TestConfigBagClearAllStopsAccumulation(t *testing.T) {
	first := NewLayer("first")
	StoreAppend(first, featureFlag("a"))

	second := NewLayer("second")
	ClearAll[featureFlag](second)
	StoreAppend(second, featureFlag("b"))

	bag := ConfigBagOf(first.Freeze(), second.Freeze())
	got := LoadAll[featureFlag](bag)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("Expected only items after the clear, got %v", got)
	}
}

func TestFrozenLayerPanicsOnWrite(t *testing.T) {
	layer := NewLayer("frozen")
	frozen := layer.Freeze()
	if frozen.Name() != "frozen" {
		t.Errorf("Expected name frozen, got %s", frozen.Name())
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected a panic writing to a frozen layer")
		}
		if !strings.Contains(r.(string), "frozen") {
			t.Errorf("Expected panic message to mention the layer, got %v", r)
		}
	}()
	StorePut(layer, retryLimit(1))
}

func TestLayerCloneIsMutable(t *testing.T) {
	layer := NewLayer("original")
	StorePut(layer, retryLimit(1))
	layer.Freeze()

	c := layer.clone()
	StorePut(c, retryLimit(2))

	if got, _ := LoadFromLayer[retryLimit](layer); got != 1 {
		t.Errorf("Expected original layer unchanged, got %d", got)
	}
	if got, _ := LoadFromLayer[retryLimit](c); got != 2 {
		t.Errorf("Expected clone to hold the new value, got %d", got)
	}
}

func TestTypeErasure(t *testing.T) {
	box := Erase(retryLimit(5))
	if got := Downcast[retryLimit](box); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if _, ok := TryDowncast[featureFlag](box); ok {
		t.Error("Expected TryDowncast to a different type to fail")
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected Downcast to panic on a type mismatch")
		}
		msg := r.(string)
		if !strings.Contains(msg, "retryLimit") || !strings.Contains(msg, "featureFlag") {
			t.Errorf("Expected panic to name both types, got %s", msg)
		}
	}()
	Downcast[featureFlag](box)
}
