// Package catalog holds the instrument catalog: the mapping from instrument
// code to display names, fetched from the REST listing at most once per
// process unless a load fails.
//
// A Catalog is constructed once at startup and passed by reference to every
// stream client that needs display names or market discovery.
package catalog
