package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Accelerator is a parsed key combination such as "Ctrl+Shift+F9".
type Accelerator struct {
	Modifiers Modifier
	// Key is the canonical key name: "Space", "A".."Z", "0".."9", "F1".."F12",
	// "Escape", "Return", "Tab".
	Key string
}

func (a Accelerator) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if a.Modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, a.Key), "+")
}

var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
	"meta":    ModSuper,
}

var namedKeys = map[string]string{
	"space":  "Space",
	"escape": "Escape",
	"esc":    "Escape",
	"return": "Return",
	"enter":  "Return",
	"tab":    "Tab",
}

// ParseAccelerator parses "Mod+Mod+Key". Names are case-insensitive and the
// key must come last.
func ParseAccelerator(s string) (Accelerator, error) {
	var a Accelerator
	parts := strings.Split(s, "+")
	for i, raw := range parts {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return Accelerator{}, fmt.Errorf("hotkey: empty component in %q", s)
		}
		if i < len(parts)-1 {
			m, ok := modifierNames[p]
			if !ok {
				return Accelerator{}, fmt.Errorf("hotkey: unknown modifier %q in %q", raw, s)
			}
			a.Modifiers |= m
			continue
		}
		key, err := canonicalKey(p)
		if err != nil {
			return Accelerator{}, fmt.Errorf("hotkey: %w in %q", err, s)
		}
		a.Key = key
	}
	return a, nil
}

func canonicalKey(p string) (string, error) {
	if k, ok := namedKeys[p]; ok {
		return k, nil
	}
	if len(p) == 1 && (p[0] >= 'a' && p[0] <= 'z' || p[0] >= '0' && p[0] <= '9') {
		return strings.ToUpper(p), nil
	}
	if len(p) >= 2 && p[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(p[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == p[1:] {
			return "F" + p[1:], nil
		}
	}
	return "", fmt.Errorf("unsupported key %q", p)
}

// X11Keysym returns the X11 keysym name for the key.
func (a Accelerator) X11Keysym() string {
	switch a.Key {
	case "Space":
		return "space"
	case "Escape", "Return", "Tab":
		return a.Key
	}
	if len(a.Key) == 1 {
		return strings.ToLower(a.Key)
	}
	return a.Key // F1..F12
}

// X11Modifiers returns the X11 modifier mask.
func (a Accelerator) X11Modifiers() uint {
	const (
		shiftMask   = 1 << 0
		controlMask = 1 << 2
		mod1Mask    = 1 << 3 // Alt
		mod4Mask    = 1 << 6 // Super
	)
	var m uint
	if a.Modifiers&ModShift != 0 {
		m |= shiftMask
	}
	if a.Modifiers&ModCtrl != 0 {
		m |= controlMask
	}
	if a.Modifiers&ModAlt != 0 {
		m |= mod1Mask
	}
	if a.Modifiers&ModSuper != 0 {
		m |= mod4Mask
	}
	return m
}

// macKeyCodes are ANSI virtual key codes from HIToolbox/Events.h.
var macKeyCodes = map[string]uint32{
	"A": 0x00, "S": 0x01, "D": 0x02, "F": 0x03, "H": 0x04, "G": 0x05, "Z": 0x06,
	"X": 0x07, "C": 0x08, "V": 0x09, "B": 0x0B, "Q": 0x0C, "W": 0x0D, "E": 0x0E,
	"R": 0x0F, "Y": 0x10, "T": 0x11, "1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15,
	"6": 0x16, "5": 0x17, "9": 0x19, "7": 0x1A, "8": 0x1C, "0": 0x1D, "O": 0x1F,
	"U": 0x20, "I": 0x22, "P": 0x23, "L": 0x25, "J": 0x26, "K": 0x28, "N": 0x2D,
	"M": 0x2E,
	"Return": 0x24, "Tab": 0x30, "Space": 0x31, "Escape": 0x35,
	"F1": 0x7A, "F2": 0x78, "F3": 0x63, "F4": 0x76, "F5": 0x60, "F6": 0x61,
	"F7": 0x62, "F8": 0x64, "F9": 0x65, "F10": 0x6D, "F11": 0x67, "F12": 0x6F,
}

// MacKeyCode returns the Carbon virtual key code.
func (a Accelerator) MacKeyCode() (uint32, bool) {
	code, ok := macKeyCodes[a.Key]
	return code, ok
}

// MacModifiers returns the Carbon modifier mask.
func (a Accelerator) MacModifiers() uint32 {
	const (
		cmdKey     = 0x0100
		shiftKey   = 0x0200
		optionKey  = 0x0800
		controlKey = 0x1000
	)
	var m uint32
	if a.Modifiers&ModSuper != 0 {
		m |= cmdKey
	}
	if a.Modifiers&ModShift != 0 {
		m |= shiftKey
	}
	if a.Modifiers&ModAlt != 0 {
		m |= optionKey
	}
	if a.Modifiers&ModCtrl != 0 {
		m |= controlKey
	}
	return m
}
