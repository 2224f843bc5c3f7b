// Package wire defines what travels between a publisher and an aggregator:
// the Payload variant handed to a publisher by its owner, the Envelope that
// tags every signal with its origin, and the length-prefixed frame that
// carries one JSON-encoded envelope over the local socket.
package wire
