// Package jwt issues and verifies RS256 bearer tokens against a keyset.Resolver.
//
// Verification runs a fixed sequence: parse the three compact segments, resolve the key
// named by the header kid, check the header algorithm against the algorithm the key owner
// published, verify the signature, and only then decode and validate the claims. Every
// failure maps to one sentinel error; Reason turns it into a short string that is safe to
// return to a client.
//
// Signatures are produced and checked by a Backend. GolangJWT is the default; Jose is an
// interchangeable alternative built on go-jose.
package jwt
