// Package publisher implements the server side of the rendezvous transport.
//
// An Endpoint binds a Unix domain socket inside its own rendezvous
// subdirectory, advertises it through the connection descriptor, and relays
// the signals its owning process publishes to whichever single consumer is
// attached. Delivery is at most once: a signal in flight when the consumer
// disappears is logged and dropped.
package publisher
