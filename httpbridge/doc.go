// Package httpbridge dispatches the guest's outgoing HTTP requests on
// native networking and bridges completion back into the poll model.
//
// Guest code only ever polls or blocks synchronously; the bridge runs
// requests on host I/O goroutines and settles a single-resolution
// Future the guest subscribes to. Buffered requests resolve once with
// a complete body; streaming (SSE) requests resolve on headers and
// feed chunks into a shared incoming body as they arrive. A reserved
// pseudo-scheme reroutes guest-to-guest calls through the local
// loopback service.
package httpbridge
