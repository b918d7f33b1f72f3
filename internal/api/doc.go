// Package api is the HTTP boundary of the alert engine.
//
// Owner-scoped routes live under /v1/alerts and identify the caller through
// the X-Alert-Realm and X-Alert-Owner headers, which a fronting proxy has
// already authenticated. Records of other owners behave as missing.
// Unrestricted routes live under /v1/admin and are guarded by an optional
// bearer token. /v1/admin/events streams lifecycle events over a websocket.
package api
