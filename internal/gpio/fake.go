package gpio

import "fmt"

// FakePins is a test double holding pin levels in memory.
type FakePins struct {
	// Levels holds the current level of each pin; unset pins read low.
	Levels map[int]bool

	// Writes records every Write call in order.
	Writes []Write

	// ReadErrors and WriteErrors, if set for a pin, are returned by Read/Write.
	ReadErrors  map[int]error
	WriteErrors map[int]error

	// Closed tracks if Close was called
	Closed bool

	// links maps a control pin to the sensor pins that follow it.
	links map[int][]int
}

// Write is a single recorded pin write.
type Write struct {
	Pin  int
	High bool
}

// NewFakePins creates FakePins with the given initial levels.
func NewFakePins(levels map[int]bool) *FakePins {
	f := &FakePins{
		Levels:      make(map[int]bool),
		ReadErrors:  make(map[int]error),
		WriteErrors: make(map[int]error),
		links:       make(map[int][]int),
	}
	for pin, high := range levels {
		f.Levels[pin] = high
	}
	return f
}

// Link makes sensor follow every write to control, modelling a pump whose
// running sensor reports the state of its relay.
func (f *FakePins) Link(control, sensor int) {
	f.links[control] = append(f.links[control], sensor)
	f.Levels[sensor] = f.Levels[control]
}

// Set forces a pin level, as an external actor would (a float switch
// dropping, an interlock opening).
func (f *FakePins) Set(pin int, high bool) {
	f.Levels[pin] = high
}

// Read returns the current level of pin.
func (f *FakePins) Read(pin int) (bool, error) {
	if err := f.ReadErrors[pin]; err != nil {
		return false, err
	}
	return f.Levels[pin], nil
}

// Write records and applies the level, propagating it to linked pins.
func (f *FakePins) Write(pin int, high bool) error {
	if f.Closed {
		return fmt.Errorf("write pin %d: closed", pin)
	}
	if err := f.WriteErrors[pin]; err != nil {
		return err
	}
	f.Writes = append(f.Writes, Write{Pin: pin, High: high})
	f.Levels[pin] = high
	for _, s := range f.links[pin] {
		f.Levels[s] = high
	}
	return nil
}

// LastWrite returns the most recent write to pin and whether there was one.
func (f *FakePins) LastWrite(pin int) (Write, bool) {
	for i := len(f.Writes) - 1; i >= 0; i-- {
		if f.Writes[i].Pin == pin {
			return f.Writes[i], true
		}
	}
	return Write{}, false
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes and reopens the pins.
func (f *FakePins) Reset() {
	f.Writes = nil
	f.Closed = false
}
