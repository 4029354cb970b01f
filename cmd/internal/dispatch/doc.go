// Package dispatch is the tap event boundary: it resolves card
// identifiers, debounces duplicate taps, forwards taps to the
// attendance engine, and surfaces results to the front end over HTTP
// and a WebSocket event feed.
package dispatch
