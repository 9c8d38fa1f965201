// Package stream maintains a live ticker subscription for one exchange.
//
// A Client dials the exchange websocket, subscribes to a list of instrument
// codes, normalizes every ticker into the shared price store and reconnects
// after a fixed delay whenever the transport closes. Reconnects stop once
// Disconnect is called or the context passed to Connect is cancelled.
//
// State transitions:
//
//	Disconnected → Connecting → Subscribed → Closed → Reconnecting → Connecting …
//
// Any state returns to Disconnected on Disconnect.
package stream
