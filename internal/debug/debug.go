// Package debug provides a process-wide switchable debug log channel.
package debug

import (
	"fmt"
	"sync/atomic"
)

var enabled atomic.Bool

// Enable turns debug output on.
func Enable() {
	enabled.Store(true)
	fmt.Println("[DEBUG] Debug mode enabled")
}

// Disable turns debug output off.
func Disable() {
	fmt.Println("[DEBUG] Debug mode disabled")
	enabled.Store(false)
}

// Set switches debug output to the given state.
func Set(on bool) {
	if on {
		Enable()
	} else {
		Disable()
	}
}

// Toggle flips debug output and returns the new state.
func Toggle() bool {
	for {
		old := enabled.Load()
		if enabled.CompareAndSwap(old, !old) {
			if !old {
				fmt.Println("[DEBUG] Debug mode enabled")
			} else {
				fmt.Println("[DEBUG] Debug mode disabled")
			}
			return !old
		}
	}
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	return enabled.Load()
}

// Printf prints a debug line tagged with the component name when enabled.
func Printf(component, format string, args ...any) {
	if !enabled.Load() {
		return
	}
	fmt.Printf("[DEBUG] [%s] %s\n", component, fmt.Sprintf(format, args...))
}
