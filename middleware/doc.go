// Package middleware authenticates HTTP requests with bearer tokens.
//
// [Guard] reads the Authorization header, verifies the token through a [Verifier] (an
// *jobauth.Engine in production), and stores the verified claims in the request context
// where handlers read them with jobauth.ClaimsFromContext or jobauth.SubjectFromContext.
//
// # Responses
//
// Rejected requests get 401 with a JSON body {"detail": reason}. A missing header reads
// "Missing access token"; any other failure uses jwt.Reason, so error internals never reach
// the client.
//
// # What this package must NOT do
//
//   - Parse or verify tokens itself (delegates to the Verifier).
//   - Fetch keys or perform any I/O besides writing the response.
//   - Make authorization decisions beyond pass/reject.
package middleware
