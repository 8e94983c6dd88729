// Package mqtt publishes conversation digests and runtime status to an
// MQTT broker.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained birth message ("online") to the
// availability topic; a will message flips it to "offline" on
// unexpected disconnects. Digests are published, not retained, to
// <prefix>/digests/<chat_id> as JSON. Status values are retained under
// <prefix>/status/<name> and refreshed periodically.
package mqtt
