// Package providerfilter decides which marketplace providers a worker may
// accept offers from.
//
// Providers are matched fuzzily: a list entry matches a provider when it
// equals the provider's node name or is a prefix of its id, but not both.
// The blacklist wins over the whitelist; an empty whitelist admits
// everyone; required CPU features must all be advertised. Decisions are
// published as signals so an aggregator can show why offers were turned
// down.
package providerfilter
