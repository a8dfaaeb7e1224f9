// Package keyset resolves token verification keys by key identifier (kid).
//
// A [Set] is an immutable snapshot of verification keys: a kid-indexed map plus an
// optional default key used when a token header carries no kid. Sets are built from a
// local PEM file ([LoadPEM]) or from a remote JSON Web Key Set document ([Fetcher]).
//
// # Architecture boundaries
//
// [Store] and [Remote] publish the current Set through an atomic pointer. Readers never
// lock and always observe one complete Set; refresh builds a new Set off to the side and
// swaps it in as a whole. A failed refresh keeps the previous Set.
//
// Remote documents are fetched with a bounded timeout and are never retried. An entry that
// cannot be decoded is skipped and reported with [ErrKeySetParse]; the remaining entries
// still load. A document that yields no usable key is a fetch failure.
//
// # What this package must NOT do
//
//   - Fall back from a named kid to the default key.
//   - Fetch on the per-request path (Lookup is memory-only).
//   - Hold or expose private key material.
package keyset
