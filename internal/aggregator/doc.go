// Package aggregator implements the client side of the rendezvous transport.
//
// An Aggregator periodically scans the rendezvous root, claims unclaimed
// publishers through the lock file, connects to them and relays every frame
// they send to a Sink. One goroutine per connection reads frames into a
// buffered queue; the aggregator's own loop is single threaded and drains
// those queues without blocking:
//
//	for {
//		Poll     // forward queued frames, mark ended connections bad
//		Refresh  // purge bad connections, drop vanished peers, scan, claim, dial
//		sleep
//	}
//
// Refresh always follows Poll so a connection is never purged while frames
// it already delivered are still queued.
package aggregator
