//go:build !tinygo && !cgo

package hal

import (
	"errors"
	"io"
)

func RunWindow(_ func(h HAL) func() error, _ int, _ io.Reader) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
