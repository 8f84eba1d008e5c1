// Package endpoint implements the loop that connects one transport to the bus.
//
// An Endpoint runs two goroutines. The reader copies every chunk read from
// the transport into a bus.Message tagged with the endpoint ID and publishes
// it. The writer consumes the endpoint's own subscription and writes every
// message that did not originate from this endpoint back to the transport.
//
// The endpoint moves through three states:
//
//	Active -> Closing -> Terminated
//
// End-of-stream on the transport moves it to Closing; the writer then drains
// what is already buffered before the transport is closed. A fatal read or
// write error, Close, or cancellation of the Run context closes the transport
// and the subscription at once. Transient read errors, meaning any error whose
// Timeout method reports true, are ignored and the read is retried.
//
// Errors never leave the endpoint: they are logged and recorded as the
// termination reason.
package endpoint
