//go:build darwin && cgo

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(UInt32 id, int pressed);

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    EventHotKeyID hkRef;
    GetEventParameter(theEvent, kEventParamDirectObject, typeEventHotKeyID, NULL, sizeof(hkRef), NULL, &hkRef);

    UInt32 eventKind = GetEventKind(theEvent);
    int pressed = (eventKind == kEventHotKeyPressed) ? 1 : 0;

    goHotkeyCallback(hkRef.id, pressed);

    return noErr;
}

static int handlerInstalled = 0;

// Register hotkey with Carbon
static int registerHotkey(UInt32 keyCode, UInt32 modifiers, UInt32 id, EventHotKeyRef* out) {
    if (!handlerInstalled) {
        EventTypeSpec eventTypes[2];
        eventTypes[0].eventClass = kEventClassKeyboard;
        eventTypes[0].eventKind = kEventHotKeyPressed;
        eventTypes[1].eventClass = kEventClassKeyboard;
        eventTypes[1].eventKind = kEventHotKeyReleased;

        EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
        InstallApplicationEventHandler(handlerUPP, 2, eventTypes, NULL, NULL);
        handlerInstalled = 1;
    }

    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'tlkb';
    hotKeyID.id = id;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, out);

    return (status == noErr) ? 1 : 0;
}

static void unregisterHotkey(EventHotKeyRef ref) {
    UnregisterEventHotKey(ref);
}
*/
import "C"

import (
	"fmt"
	"sync"
)

type darwinHotkey struct {
	id       uint32
	ref      C.EventHotKeyRef
	callback func(bool)
}

type darwinManager struct {
	mu     sync.Mutex
	nextID uint32
	keys   map[string]*darwinHotkey // by canonical accelerator
}

var (
	globalMu      sync.Mutex
	globalManager *darwinManager
)

// New creates a new macOS hotkey manager using Carbon
func New() (Manager, error) {
	mgr := &darwinManager{keys: make(map[string]*darwinHotkey)}

	globalMu.Lock()
	globalManager = mgr
	globalMu.Unlock()

	return mgr, nil
}

//export goHotkeyCallback
func goHotkeyCallback(id C.UInt32, pressed C.int) {
	globalMu.Lock()
	m := globalManager
	globalMu.Unlock()
	if m == nil {
		return
	}

	var cb func(bool)
	m.mu.Lock()
	for _, k := range m.keys {
		if k.id == uint32(id) {
			cb = k.callback
			break
		}
	}
	m.mu.Unlock()

	if cb != nil {
		cb(pressed == 1)
	}
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}
	keyCode, ok := a.MacKeyCode()
	if !ok {
		return fmt.Errorf("hotkey: no key code for %s", a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	k := &darwinHotkey{id: m.nextID, callback: callback}
	if C.registerHotkey(C.UInt32(keyCode), C.UInt32(a.MacModifiers()), C.UInt32(k.id), &k.ref) == 0 {
		return fmt.Errorf("hotkey: failed to register %s", a)
	}

	m.keys[a.String()] = k
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if k, ok := m.keys[a.String()]; ok {
		C.unregisterHotkey(k.ref)
		delete(m.keys, a.String())
	}
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	for name, k := range m.keys {
		C.unregisterHotkey(k.ref)
		delete(m.keys, name)
	}
	m.mu.Unlock()

	globalMu.Lock()
	if globalManager == m {
		globalManager = nil
	}
	globalMu.Unlock()
	return nil
}
