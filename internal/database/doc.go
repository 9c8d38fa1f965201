// Package database provides the PostgreSQL connection pool and schema for
// the latest-price mirror.
//
// The latest_prices table holds exactly one row per (exchange, symbol); rows
// are overwritten in place and never accumulate history.
package database
