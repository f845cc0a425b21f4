// Package service is the bridge: it ties device connections, MIDI ports,
// mappings, learn and shadow state together and runs the sync engine.
//
// # Engine
//
// Engine consumes one ordered queue of inbound events. MIDI messages take
// the forward path (translate, compare with shadow state, write the device
// parameter); device parameter values take the reverse path (compare,
// translate inverse, send MIDI) for bidirectional mappings. Values echoed by
// hardware land within tolerance of the recorded shadow value and are
// suppressed, which is what keeps the two directions from feeding each
// other.
//
// # Service
//
// Service is the command surface used by the CLI:
//
//	svc := service.New(config)
//	svc.OnEvent(func(e service.Event) { ... })
//	svc.Start(ctx)
//	defer svc.Stop()
//
//	devices, _ := svc.DiscoverDevices(ctx)
//	svc.ConnectDevice(ctx, devices[0].ID())
//	svc.ConnectPort("in:X-Touch")
//	svc.AddMapping(m)
//
// Every rejected command also produces an EventError, and every device or
// port state change produces an event. A failure on one device or port
// never stops sync for the others.
package service
