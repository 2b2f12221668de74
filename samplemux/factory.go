package samplemux

import (
	"go.bug.st/serial"
)

// NewRealMux creates a SampleMux instance backed by a real tracker on a
// serial port at the given path using the provided serial options.
func NewRealMux(path string, opts PortOptions) (*SampleMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSampleMux[serial.Port](port), nil
}
