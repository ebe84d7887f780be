//go:build !tinygo

package hal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// RawInput puts f in raw mode when it is a terminal, so that every key
// reaches the simulated UART. The returned function restores the terminal.
func RawInput(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("hal: raw input: %w", err)
	}
	return func() { term.Restore(fd, old) }, nil
}
