package samplemux

import (
	"io"
)

// Porter defines the minimal interface needed for a sample source.
// This abstraction enables unit testing without real tracker hardware, and
// lets serial, NATS and mock sources share one mux implementation.
type Porter interface {
	io.ReadWriter
	io.Closer
}
