package backend

import (
	"context"
	"testing"
)

type fakeHandle struct{ pid int }

func (f *fakeHandle) PID() int   { return f.pid }
func (f *fakeHandle) Wait() error { return nil }
func (f *fakeHandle) Kill() error { return nil }

func TestRegistryResolveUnknownID(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve("nope", nil); err == nil {
		t.Fatal("expected an error for an unregistered id")
	}
}

func TestRegistryRegisterDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	factory := func(Config) (Backend, error) { return nil, nil }
	if err := reg.Register("fake", factory); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("fake", factory); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryResolveConstructsBackend(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("fake", func(Config) (Backend, error) {
		return fakeBackend{}, nil
	})
	b, err := reg.Resolve("fake", nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := b.Spawn(context.Background(), SpawnRequest{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if h.PID() != 42 {
		t.Fatalf("expected pid 42, got %d", h.PID())
	}
}

func TestIDsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("zeta", func(Config) (Backend, error) { return nil, nil })
	reg.MustRegister("alpha", func(Config) (Backend, error) { return nil, nil })
	ids := reg.IDs()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}

type fakeBackend struct{}

func (fakeBackend) Spawn(ctx context.Context, req SpawnRequest) (Handle, error) {
	return &fakeHandle{pid: 42}, nil
}
