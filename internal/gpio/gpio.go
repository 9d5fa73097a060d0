// Package gpio provides digital pin access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pins reads and drives digital pins by line offset.
type Pins interface {
	// Read returns true when the pin is high.
	Read(pin int) (bool, error)

	// Write drives the pin high (true) or low (false).
	Write(pin int, high bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the character device holding the controller's lines.
const DefaultChip = "gpiochip0"
