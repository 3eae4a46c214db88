// Package dashboard provides the embedded web UI for livefetch.
//
// The page subscribes to /api/sse and renders one card per resource with
// its current value, busy flag and last error. Each card can trigger a
// refresh through POST /api/resources/{name}/refresh.
package dashboard

import "embed"

// Assets holds the dashboard files under assets/. The server package
// serves assets/index.html at "/".
//
//go:embed assets/*
var Assets embed.FS
