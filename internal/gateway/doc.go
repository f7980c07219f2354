// ABOUTME: Package documentation for gateway
// ABOUTME: Describes the HTTP surface and the WebSocket protocol

// Package gateway is the client-facing HTTP surface.
//
// Clients authenticate with an HS256 JWT (Authorization header or token
// query parameter) and open GET /ws/dm/:peerID as a WebSocket. The server
// streams JSON frames: "state" carries the session lifecycle state and the
// full ordered message log, "presence" carries the peer's presence snapshot,
// "accepted" acknowledges a send with its client token, "error" reports
// failures. Clients send {"type":"send","body":...} to post a message.
//
// /health and /health/ready serve liveness and readiness; Prometheus metrics
// are exposed when enabled in config.
package gateway
