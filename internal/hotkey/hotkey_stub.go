//go:build !cgo || (!linux && !darwin)

package hotkey

import "errors"

// New fails on platforms without a native hotkey implementation.
func New() (Manager, error) {
	return nil, errors.New("hotkey: global hotkeys are not supported on this platform")
}
