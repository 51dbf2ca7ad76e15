//go:build linux && cgo

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

Display* displayPtr = NULL;

static int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

static int keycodeFor(const char* name) {
    if (!openDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

// grabKey grabs keycode with modifiers, with and without NumLock/CapsLock.
static int grabKey(int keycode, unsigned int modifiers) {
    if (!openDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int extra[] = {0, Mod2Mask, LockMask, Mod2Mask | LockMask};
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, keycode, modifiers | extra[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

static void ungrabKey(int keycode, unsigned int modifiers) {
    if (displayPtr == NULL) return;

    Window root = DefaultRootWindow(displayPtr);
    unsigned int extra[] = {0, Mod2Mask, LockMask, Mod2Mask | LockMask};
    for (int i = 0; i < 4; i++) {
        XUngrabKey(displayPtr, keycode, modifiers | extra[i], root);
    }
    XSync(displayPtr, False);
}

static int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    while (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            // X auto-repeat delivers Release+Press pairs while held.
            if (event.type == KeyRelease && XPending(displayPtr) > 0) {
                XEvent next;
                XPeekEvent(displayPtr, &next);
                if (next.type == KeyPress && next.xkey.time == event.xkey.time &&
                    next.xkey.keycode == event.xkey.keycode) {
                    XNextEvent(displayPtr, &next);
                    continue;
                }
            }
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}

static void closeDisplay() {
    if (displayPtr != NULL) {
        XCloseDisplay(displayPtr);
        displayPtr = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type grab struct {
	keycode   int
	modifiers uint
	callback  func(bool)
}

// X11 is not thread-safe; every C call goes through mu.
type linuxManager struct {
	mu       sync.Mutex
	grabs    map[string]grab // by canonical accelerator
	held     map[int]bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	if C.openDisplay() == 0 {
		return nil, fmt.Errorf("hotkey: cannot open X display")
	}

	mgr := &linuxManager{
		grabs: make(map[string]grab),
		held:  make(map[int]bool),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	name := C.CString(a.X11Keysym())
	defer C.free(unsafe.Pointer(name))

	m.mu.Lock()
	defer m.mu.Unlock()

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("hotkey: no keycode for %s", a)
	}
	mods := a.X11Modifiers()
	if C.grabKey(C.int(keycode), C.uint(mods)) == 0 {
		return fmt.Errorf("hotkey: failed to grab %s", a)
	}

	m.grabs[a.String()] = grab{keycode: keycode, modifiers: mods, callback: callback}
	return nil
}

func (m *linuxManager) Unregister(accel string) error {
	a, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grabs[a.String()]
	if !ok {
		return nil
	}
	C.ungrabKey(C.int(g.keycode), C.uint(g.modifiers))
	delete(m.grabs, a.String())
	return nil
}

func (m *linuxManager) eventLoop() {
	defer close(m.done)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			m.mu.Lock()
			got := C.checkEvent(&keycode, &pressed) != 0
			var cb func(bool)
			if got {
				cb = m.callbackLocked(int(keycode), pressed == 1)
			}
			m.mu.Unlock()
			if cb != nil {
				cb(pressed == 1)
			}
		}
	}
}

// callbackLocked returns the callback for keycode, suppressing repeated
// presses while the key is held.
func (m *linuxManager) callbackLocked(keycode int, pressed bool) func(bool) {
	if pressed == m.held[keycode] {
		return nil
	}
	m.held[keycode] = pressed
	for _, g := range m.grabs {
		if g.keycode == keycode {
			return g.callback
		}
	}
	return nil
}

func (m *linuxManager) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		defer m.mu.Unlock()
		for name, g := range m.grabs {
			C.ungrabKey(C.int(g.keycode), C.uint(g.modifiers))
			delete(m.grabs, name)
		}
		C.closeDisplay()
	})
	return nil
}
