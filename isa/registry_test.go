package isa

import "testing"

func TestRegistryDefineLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Define(NOP, Info{Name: "NOP", Size: 1, Conflict: SelfOnly}, func(ctx *Context) error {
		called = true
		return nil
	})
	info, handler, ok := r.Lookup(NOP)
	if !ok {
		t.Fatalf("expected NOP to be registered")
	}
	if info.Name != "NOP" {
		t.Errorf("Name = %q, want NOP", info.Name)
	}
	if err := handler(&Context{}); err != nil {
		t.Errorf("handler returned %v", err)
	}
	if !called {
		t.Errorf("handler was not invoked")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if _, _, ok := r.Lookup(Opcode(9999)); ok {
		t.Errorf("expected unregistered opcode to miss")
	}
}
