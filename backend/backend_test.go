package backend

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/frameq"
)

type stubDevice struct {
	name string
}

func (d *stubDevice) Name() string                      { return d.name }
func (d *stubDevice) Init() error                       { return nil }
func (d *stubDevice) Capabilities() frameq.Capabilities { return frameq.Capabilities{} }
func (d *stubDevice) MakeCurrent() error                { return nil }
func (d *stubDevice) IsCurrent() bool                   { return true }
func (d *stubDevice) SwapBuffers() error                { return nil }
func (d *stubDevice) Rebuild() error                    { return nil }
func (d *stubDevice) Close() error                      { return nil }

func (d *stubDevice) Dispatch(*frameq.Frame, image.Point) error { return nil }

func cleanRegistry(t *testing.T) {
	t.Helper()
	for _, name := range Available() {
		Unregister(name)
	}
}

func TestRegisterAndGet(t *testing.T) {
	cleanRegistry(t)

	Register("stub", func() frameq.Device { return &stubDevice{name: "stub"} })
	defer Unregister("stub")

	if !IsRegistered("stub") {
		t.Fatal("stub not registered")
	}
	d := Get("stub")
	if d == nil || d.Name() != "stub" {
		t.Errorf("Get(stub) = %v", d)
	}
	if Get("nonexistent") != nil {
		t.Error("Get(nonexistent) returned a device")
	}
}

func TestDefaultPrefersWgpu(t *testing.T) {
	cleanRegistry(t)

	Register(BackendHeadless, func() frameq.Device { return &stubDevice{name: BackendHeadless} })
	Register(BackendWgpu, func() frameq.Device { return &stubDevice{name: BackendWgpu} })
	defer Unregister(BackendHeadless)
	defer Unregister(BackendWgpu)

	d := Default()
	if d == nil || d.Name() != BackendWgpu {
		t.Errorf("Default() = %v, want wgpu", d)
	}

	Unregister(BackendWgpu)
	d = Default()
	if d == nil || d.Name() != BackendHeadless {
		t.Errorf("Default() without wgpu = %v, want headless", d)
	}
}

func TestOpenDefaultWithoutBackends(t *testing.T) {
	cleanRegistry(t)

	if _, err := OpenDefault(); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("err = %v, want ErrNotAvailable", err)
	}
}
