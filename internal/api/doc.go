// Package api provides the HTTP REST API and WebSocket server for printrelay.
//
// The API manages registration and cancellation rules, lists pending
// actions, accepts host events as webhooks and streams action lifecycle
// events over WebSocket.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Authentication
//
// When security.jwt.secret is set every route except /health requires an
// operator token, sent as "Authorization: Bearer <token>". Browsers cannot
// set headers on WebSocket upgrades, so /ws also accepts ?access_token=.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
