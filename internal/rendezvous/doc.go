// Package rendezvous owns the shared directory through which publishers and
// aggregators find each other.
//
// Layout:
//
//	{tmp}/_{service}/                root, shared, never removed
//	{tmp}/_{service}/{pid}/          one per publisher
//	    connection_info.json         {"server file": "<endpoint>"}
//	    endpoint.sock                the publisher's listening socket
//	    lockfile                     present while a consumer holds the peer
//
// Nothing in this package keeps state between calls; every scan re-reads the
// filesystem and every race with a disappearing directory is treated as the
// peer being absent.
package rendezvous
