// Package jobauth authenticates bearer tokens for the pyjobs API and issues them for the
// pyjobs identity service.
//
// An [Engine] owns the verification key set (a local PEM key, the public half of the
// signing key, or a remote JWKS document), a [jwt.Verifier], an optional [jwt.Issuer],
// counters and an audit dispatcher. Engine methods are safe to call from multiple
// goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// jobauth is the public surface. Token mechanics live in jwt, key material in keyset, and
// the HTTP boundary in middleware. middleware depends only on a small Verifier
// interface, which Engine satisfies.
//
// # What this package must NOT do
//
//   - Fetch keys on the request path. Remote keys are fetched during Build and on
//     RefreshKeys or the configured refresh interval.
//   - Hold global state. Two Engines built from different configs are independent.
//
// # Performance contract
//
// Verify is the hot path. It performs no I/O and takes no locks; the key set is read
// through an atomic pointer.
package jobauth
