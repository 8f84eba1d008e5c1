// Package bridge relays bytes between one serial device and any number of
// TCP clients.
//
// A Bridge owns a broadcast bus and one endpoint per transport: a serial
// endpoint opened through a SerialOpener, and one TCP endpoint per accepted
// connection. Bytes read by any endpoint reach every other endpoint; an
// endpoint never receives its own bytes back.
//
// Basic usage:
//
//	cfg, err := bridge.NewConfig("0.0.0.0", 5000, bridge.WithMaxClients(16))
//	if err != nil {
//	    // handle error
//	}
//
//	b, err := bridge.New(ctx, cfg, func() (endpoint.Transport, error) {
//	    return serial.Open(serial.DefaultConfig("/dev/ttyUSB0", 115200))
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer b.Close()
//
//	if err := b.ListenAndServe(); err != nil {
//	    // the listener failed or the serial device was lost
//	}
//
// Endpoints are independent: a client that disconnects, fails or falls behind
// affects nobody else. What happens when the serial endpoint terminates is
// decided by the SerialLossPolicy.
package bridge
