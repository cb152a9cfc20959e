// Package panel serves the printrelay dashboard: the per-device rule table,
// direct on/off buttons and the live list of pending actions.
//
// The assets are embedded with go:embed so the binary has no runtime file
// dependency. A directory may be given instead to edit assets without a
// rebuild. Unknown paths fall back to index.html.
package panel
