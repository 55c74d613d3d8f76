//go:build !linux && !darwin

package logger

// isTerminal conservatively reports false on platforms without a
// terminal-detection implementation, disabling color output.
func isTerminal(uintptr) bool {
	return false
}
