package core

import (
	"testing"
)

func TestFlashImageRoundTrip(t *testing.T) {
	c, _ := newTestController(testConfig())
	c.Current.KI.Store(123)
	c.Position.PositionKP.Store(4)
	c.Watchdog.SetTimeout(250)
	c.SetDeviceID(9)

	img := Snapshot(c, nil)
	buf := img.Encode(nil)
	if len(buf) != FlashImageSize {
		t.Fatalf("image size = %d, want %d", len(buf), FlashImageSize)
	}

	got, err := DecodeFlashImage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != img {
		t.Error("decoded image differs")
	}
}

func TestFlashImageRejectsCorruption(t *testing.T) {
	c, _ := newTestController(testConfig())
	img := Snapshot(c, nil)

	cases := []struct {
		name string
		mut  func(b []byte) []byte
		want error
	}{
		{"empty", func(b []byte) []byte { return nil }, ErrFlashMagic},
		{"erased", func(b []byte) []byte {
			for i := range b {
				b[i] = 0xFF
			}
			return b
		}, ErrFlashMagic},
		{"version", func(b []byte) []byte { b[4] = FlashVersion + 1; return b }, ErrFlashVersion},
		{"bit flip", func(b []byte) []byte { b[20] ^= 0x01; return b }, ErrFlashCRC},
		{"truncated", func(b []byte) []byte { return b[:FlashImageSize-1] }, ErrFlashMagic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := tc.mut(img.Encode(nil))
			if _, err := DecodeFlashImage(buf); err != tc.want {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStoreAndLoadImage(t *testing.T) {
	c, tb := newTestController(testConfig())
	if err := c.updateProfile(func(p *MotorProfile) {
		p.PolePairs = 7
		p.FluxOffset = 1.25
	}); err != nil {
		t.Fatal(err)
	}
	c.Encoder.SetPositionOffset(0.5)
	c.Current.KP.Store(0.7)
	c.SetDeviceID(12)

	if err := StoreImage(c, nil); err != nil {
		t.Fatal(err)
	}

	// a fresh controller on the same storage
	d, err := NewController(testConfig(), Board{Storage: tb.storage})
	if err != nil {
		t.Fatal(err)
	}
	if err := LoadImage(d, nil, LoadAll); err != nil {
		t.Fatal(err)
	}
	if d.DeviceID() != 12 {
		t.Errorf("device id = %d", d.DeviceID())
	}
	if d.Profile().PolePairs != 7 || d.Encoder.PolePairs() != 7 {
		t.Errorf("pole pairs = %d", d.Profile().PolePairs)
	}
	if d.Encoder.FluxOffset() != 1.25 || d.Encoder.PositionOffset() != 0.5 {
		t.Errorf("offsets = %v %v", d.Encoder.FluxOffset(), d.Encoder.PositionOffset())
	}
	if d.Current.KP.Load() != 0.7 {
		t.Errorf("kp = %v", d.Current.KP.Load())
	}
}

func TestLoadImageFlags(t *testing.T) {
	c, tb := newTestController(testConfig())
	c.updateProfile(func(p *MotorProfile) { p.FluxOffset = 2 })
	c.Current.KP.Store(0.7)
	c.SetDeviceID(12)
	if err := StoreImage(c, nil); err != nil {
		t.Fatal(err)
	}

	d, _ := NewController(testConfig(), Board{Storage: tb.storage})
	kp := d.Current.KP.Load()
	if err := LoadImage(d, nil, LoadCalibration); err != nil {
		t.Fatal(err)
	}
	if d.Encoder.FluxOffset() != 2 {
		t.Error("calibration section not applied")
	}
	if d.Current.KP.Load() != kp {
		t.Error("config section applied without LoadConfig")
	}
	if d.DeviceID() == 12 {
		t.Error("device id applied without LoadID")
	}
}

func TestFlashRequiresStoppedController(t *testing.T) {
	c, _ := newTestController(testConfig())
	enter(c, ModeCurrent)
	if err := StoreImage(c, nil); err != ErrFlashBusy {
		t.Errorf("store while running: %v", err)
	}
}

func TestFlashWithoutStorage(t *testing.T) {
	c, err := NewController(testConfig(), Board{})
	if err != nil {
		t.Fatal(err)
	}
	if err := StoreImage(c, nil); err != ErrNoStorage {
		t.Errorf("store: %v", err)
	}
	if err := LoadImage(c, nil, LoadAll); err != ErrNoStorage {
		t.Errorf("load: %v", err)
	}
}

func TestLoadImageCorruptKeepsDefaults(t *testing.T) {
	c, tb := newTestController(testConfig())
	StoreImage(c, nil)
	tb.storage.data[FlashImageSize-1] ^= 0xFF

	before := c.Profile()
	if err := LoadImage(c, nil, LoadAll); err != ErrFlashCRC {
		t.Errorf("err = %v, want ErrFlashCRC", err)
	}
	if c.Profile() != before {
		t.Error("corrupt image changed the profile")
	}
}
