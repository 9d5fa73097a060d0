//go:build !linux

package gpio

import "errors"

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, outputs, inputs []int) (*RealPins, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (p *RealPins) Read(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Write is not implemented on non-Linux platforms.
func (p *RealPins) Write(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPins) Close() error {
	return nil
}
