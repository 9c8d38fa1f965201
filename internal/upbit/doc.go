// Package upbit encodes subscription requests for and decodes ticker frames
// from the Upbit public websocket feed (SIMPLE_LIST format).
package upbit
