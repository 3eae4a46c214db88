// Package server provides the HTTP server for the livefetch dashboard and API.
//
// This package is internal to livefetch and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded HTML page at "/"
//   - REST API: resource snapshots at "/api/resources" and click-triggered
//     refreshes at "/api/resources/{name}/refresh"
//   - Server-Sent Events: live snapshot changes at "/api/sse"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
