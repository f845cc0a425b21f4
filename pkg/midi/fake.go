package midi

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// FakeBackend is a scripted Backend for tests. Ports are added and removed
// with SetPorts; Inject delivers a message on an open input; Sent returns
// what was written to an output.
type FakeBackend struct {
	mu        sync.Mutex
	ports     []ControllerPort
	listErr   error
	openErr   map[string]error
	sendErr   map[string]error
	receivers map[string]fakeInput
	sent      map[string][]Message
	open      map[string]bool
}

type fakeInput struct {
	recv  Receiver
	onErr func(error)
}

// NewFakeBackend returns a fake with the given ports.
func NewFakeBackend(ports ...ControllerPort) *FakeBackend {
	numberDuplicates(ports)
	return &FakeBackend{
		ports:     ports,
		openErr:   make(map[string]error),
		sendErr:   make(map[string]error),
		receivers: make(map[string]fakeInput),
		sent:      make(map[string][]Message),
		open:      make(map[string]bool),
	}
}

// SetPorts replaces the enumerated ports.
func (f *FakeBackend) SetPorts(ports ...ControllerPort) {
	numberDuplicates(ports)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
}

// FailList makes Ports return err (nil clears).
func (f *FakeBackend) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailOpen makes opening portID return err (nil clears).
func (f *FakeBackend) FailOpen(portID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr[portID] = err
}

// FailSend makes sends on portID return err (nil clears).
func (f *FakeBackend) FailSend(portID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr[portID] = err
}

// Inject delivers msg on the input portID. It returns false if the input is
// not open.
func (f *FakeBackend) Inject(portID string, msg Message) bool {
	f.mu.Lock()
	in, ok := f.receivers[portID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	in.recv(msg, time.Now())
	return true
}

// InjectError reports a read error on the input portID.
func (f *FakeBackend) InjectError(portID string, err error) bool {
	f.mu.Lock()
	in, ok := f.receivers[portID]
	f.mu.Unlock()
	if !ok || in.onErr == nil {
		return false
	}
	in.onErr(err)
	return true
}

// Sent returns the messages written to the output portID.
func (f *FakeBackend) Sent(portID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent[portID]...)
}

// IsOpen reports whether portID is open.
func (f *FakeBackend) IsOpen(portID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[portID]
}

// Ports implements Backend.
func (f *FakeBackend) Ports() ([]ControllerPort, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]ControllerPort(nil), f.ports...), nil
}

// OpenIn implements Backend.
func (f *FakeBackend) OpenIn(port ControllerPort, recv Receiver, onErr func(error)) (io.Closer, error) {
	id := port.ID()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[id]; err != nil {
		return nil, err
	}
	if !f.present(id) {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, id)
	}
	f.receivers[id] = fakeInput{recv: recv, onErr: onErr}
	f.open[id] = true
	return closerFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.receivers, id)
		f.open[id] = false
		return nil
	}), nil
}

// OpenOut implements Backend.
func (f *FakeBackend) OpenOut(port ControllerPort) (Output, error) {
	id := port.ID()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[id]; err != nil {
		return nil, err
	}
	if !f.present(id) {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, id)
	}
	f.open[id] = true
	return &fakeOutput{f: f, id: id}, nil
}

func (f *FakeBackend) present(id string) bool {
	for _, p := range f.ports {
		if p.ID() == id {
			return true
		}
	}
	return false
}

type fakeOutput struct {
	f  *FakeBackend
	id string
}

func (o *fakeOutput) Send(msg Message) error {
	o.f.mu.Lock()
	defer o.f.mu.Unlock()
	if err := o.f.sendErr[o.id]; err != nil {
		return err
	}
	if !o.f.open[o.id] {
		return fmt.Errorf("port %s closed", o.id)
	}
	o.f.sent[o.id] = append(o.f.sent[o.id], msg)
	return nil
}

func (o *fakeOutput) Close() error {
	o.f.mu.Lock()
	defer o.f.mu.Unlock()
	o.f.open[o.id] = false
	return nil
}

var _ Backend = (*FakeBackend)(nil)
