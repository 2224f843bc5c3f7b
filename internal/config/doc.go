// Package config loads, normalizes, and validates filterms configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment fallbacks the
// provider filter has always used: GNPROVIDER, GNPROVIDER_BL, GNFEATURES and
// FILTERMSVERBOSE. The rendezvous location, aggregator cadence and history
// database are all discovered here in one pass.
//
// Always obtain settings through this package so publishers and aggregators
// that share a service name agree on the same rendezvous directory.
package config
