// Package api provides the Upbit REST client used for market discovery.
//
// Endpoint:
//   - https://api.upbit.com/v1/market/all
//
// Only public quotation endpoints are used; no request signing.
package api
