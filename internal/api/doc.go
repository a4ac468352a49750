// Package api provides the HTTP REST API and WebSocket server for ClimaLink.
//
// It exposes device registry operations, command submission, schedules,
// alerts, and user management, plus a WebSocket hub that relays device
// status changes, command lifecycle updates, and alerts to subscribed
// clients in real time.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
