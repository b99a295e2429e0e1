// Package infra contains technical adapters such as the WebSocket hub,
// the MQTT telemetry tracker and metrics exporters. These packages should
// depend only on the interfaces defined in the core packages.
package infra
