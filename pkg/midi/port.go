package midi

import (
	"sort"
	"strconv"
)

// Direction is the data direction of a port.
type Direction uint8

const (
	// DirectionIn is a port the bridge reads from.
	DirectionIn Direction = iota

	// DirectionOut is a port the bridge writes to.
	DirectionOut
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Status is the connection status of a port.
type Status uint8

const (
	// StatusAvailable means the port was enumerated and is not open.
	StatusAvailable Status = iota

	// StatusConnected means the port is open.
	StatusConnected

	// StatusDisconnected means the port was open and went away.
	StatusDisconnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ControllerPort describes one MIDI input or output.
type ControllerPort struct {
	// Index is the driver's port number. It may change between passes.
	Index int

	// Name is the driver's port name.
	Name string

	// Manufacturer is set when the driver reports it.
	Manufacturer string

	// Occurrence counts lower-indexed ports with the same direction and
	// name. Two identical controllers get Occurrence 0 and 1.
	Occurrence int

	Direction Direction
	Status    Status
}

// ID returns the stable port identity used across enumeration passes.
// Repeated names get a "#n" suffix: "in:X-Touch", "in:X-Touch#2".
func (p ControllerPort) ID() string {
	id := PortID(p.Direction, p.Name)
	if p.Occurrence > 0 {
		id += "#" + strconv.Itoa(p.Occurrence+1)
	}
	return id
}

// PortID builds a port identity from direction and name.
func PortID(dir Direction, name string) string {
	if dir == DirectionOut {
		return "out:" + name
	}
	return "in:" + name
}

// PortChange is the result of one enumeration pass.
type PortChange struct {
	// Added are ports not present in the previous pass.
	Added []ControllerPort

	// Removed are ports from the previous pass that are gone.
	Removed []ControllerPort

	// Ports is the full current snapshot.
	Ports []ControllerPort
}

// Changed reports whether any port appeared or disappeared.
func (c PortChange) Changed() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

// Diff compares two snapshots by port ID.
func Diff(prev, next []ControllerPort) (added, removed []ControllerPort) {
	before := make(map[string]bool, len(prev))
	for _, p := range prev {
		before[p.ID()] = true
	}
	after := make(map[string]bool, len(next))
	for _, p := range next {
		after[p.ID()] = true
		if !before[p.ID()] {
			added = append(added, p)
		}
	}
	for _, p := range prev {
		if !after[p.ID()] {
			removed = append(removed, p)
		}
	}
	return added, removed
}

// numberDuplicates sets Occurrence on every port by driver index order.
func numberDuplicates(ports []ControllerPort) {
	order := make([]int, len(ports))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ports[order[a]].Index < ports[order[b]].Index
	})

	seen := make(map[string]int, len(ports))
	for _, i := range order {
		key := PortID(ports[i].Direction, ports[i].Name)
		ports[i].Occurrence = seen[key]
		seen[key]++
	}
}

// sortPorts orders ports inputs first, then by name.
func sortPorts(ports []ControllerPort) {
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Direction != ports[j].Direction {
			return ports[i].Direction < ports[j].Direction
		}
		if ports[i].Name != ports[j].Name {
			return ports[i].Name < ports[j].Name
		}
		return ports[i].Occurrence < ports[j].Occurrence
	})
}
