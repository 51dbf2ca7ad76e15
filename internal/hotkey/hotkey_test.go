package hotkey

import "testing"

func TestParseAccelerator(t *testing.T) {
	tests := []struct {
		in      string
		want    Accelerator
		wantErr bool
	}{
		{in: "Alt+Space", want: Accelerator{Modifiers: ModAlt, Key: "Space"}},
		{in: "ctrl + shift + f9", want: Accelerator{Modifiers: ModCtrl | ModShift, Key: "F9"}},
		{in: "Cmd+Option+K", want: Accelerator{Modifiers: ModSuper | ModAlt, Key: "K"}},
		{in: "F12", want: Accelerator{Key: "F12"}},
		{in: "Super+enter", want: Accelerator{Modifiers: ModSuper, Key: "Return"}},
		{in: "", wantErr: true},
		{in: "Alt+", wantErr: true},
		{in: "Hyper+Space", wantErr: true},
		{in: "Alt+F13", wantErr: true},
		{in: "Alt+F01", wantErr: true},
		{in: "Alt+PageUp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccelerator(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAcceleratorString(t *testing.T) {
	a, err := ParseAccelerator("shift+alt+ctrl+a")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.String(); got != "Ctrl+Alt+Shift+A" {
		t.Fatalf("expected canonical order, got %q", got)
	}
}

func TestPlatformMappings(t *testing.T) {
	a := Accelerator{Modifiers: ModAlt, Key: "Space"}

	if got := a.X11Keysym(); got != "space" {
		t.Errorf("X11 keysym: expected space, got %q", got)
	}
	if got := a.X11Modifiers(); got != 8 {
		t.Errorf("X11 modifiers: expected Mod1Mask (8), got %d", got)
	}
	if code, ok := a.MacKeyCode(); !ok || code != 49 {
		t.Errorf("mac key code: expected 49, got %d (%v)", code, ok)
	}
	if got := a.MacModifiers(); got != 0x800 {
		t.Errorf("mac modifiers: expected optionKey, got %#x", got)
	}

	ctrl := Accelerator{Modifiers: ModCtrl | ModShift, Key: "B"}
	if got := ctrl.X11Keysym(); got != "b" {
		t.Errorf("X11 keysym: expected b, got %q", got)
	}
	if got := ctrl.MacModifiers(); got != 0x1200 {
		t.Errorf("mac modifiers: expected %#x, got %#x", 0x1200, got)
	}
}
