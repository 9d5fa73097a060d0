//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives pins through the Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	lines   map[int]*gpiocdev.Line
	outputs map[int]bool
}

// NewRealPins requests outputs (initially low) and inputs (pull-down) on chip.
func NewRealPins(chipName string, outputs, inputs []int) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPins{
		chip:    chip,
		lines:   make(map[int]*gpiocdev.Line),
		outputs: make(map[int]bool),
	}

	for _, pin := range outputs {
		if _, ok := p.lines[pin]; ok {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		p.lines[pin] = line
		p.outputs[pin] = true
	}

	for _, pin := range inputs {
		if _, ok := p.lines[pin]; ok {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request input pin %d: %w", pin, err)
		}
		p.lines[pin] = line
	}

	return p, nil
}

// Read returns the level of a requested pin.
func (p *RealPins) Read(pin int) (bool, error) {
	line, ok := p.lines[pin]
	if !ok {
		return false, fmt.Errorf("read pin %d: not requested", pin)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// Write drives an output pin.
func (p *RealPins) Write(pin int, high bool) error {
	line, ok := p.lines[pin]
	if !ok || !p.outputs[pin] {
		return fmt.Errorf("write pin %d: not an output", pin)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Close drives outputs low, returns every line to input with pull-down
// (the Pi boot default) and releases the chip.
func (p *RealPins) Close() error {
	var errs []error

	for pin, line := range p.lines {
		if p.outputs[pin] {
			if err := line.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("drive pin %d low: %w", pin, err))
			}
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	p.lines = nil
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		p.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
