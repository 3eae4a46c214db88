// Package fetch provides the HTTP client collaborator used by livefetch
// fetchers.
//
// This package is internal to livefetch. [Client] performs exactly one
// request per call with a per-request timeout, caps the response body, and
// reports failures in [Response] instead of retrying. Retry policy, if any,
// belongs to the caller.
package fetch
