package midi

import (
	"errors"
	"fmt"
)

// Port errors.
var (
	ErrUnknownPort          = errors.New("unknown midi port")
	ErrPortAlreadyConnected = errors.New("midi port already connected")
	ErrPortNotConnected     = errors.New("midi port not connected")
	ErrWrongDirection       = errors.New("wrong port direction")
)

// PortError is a failure on one port. Other ports are unaffected.
type PortError struct {
	PortID string
	Op     string
	Err    error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("midi port %s: %s: %v", e.PortID, e.Op, e.Err)
}

func (e *PortError) Unwrap() error {
	return e.Err
}

func portErr(id, op string, err error) error {
	return &PortError{PortID: id, Op: op, Err: err}
}
