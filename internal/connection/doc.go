// Package connection wraps a single websocket to the exchange feed.
//
// A Client dials once, reads frames on its own goroutine, answers server
// pings, sends keep-alive pings and reports the first read failure on
// Errors(). It never redials; reconnect policy belongs to the caller.
package connection
