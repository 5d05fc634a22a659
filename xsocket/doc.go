// Package xsocket is the uniform socket abstraction from spec §4.8: a
// single Socket interface (id/is_caller/read/write/stats/mode) implemented
// by three concrete variants - a reliable single link, a reliable bonded
// group, and plain UDP (single-message and multi-message flavors) - plus
// the connection lifecycle (unbound/listening/connecting/connected/closing)
// each variant drives itself through.
//
// Per spec §1 and SPEC_FULL.md §14, the reliable-transport protocol itself
// (the SRT-family library the spec assumes as an external collaborator) is
// out of scope and absent from the retrieval pack; the reliable variants
// here are backed by kernel TCP sockets driven directly through raw file
// descriptors, which gives every one of the interesting engineering
// concerns this spec actually asks for - non-blocking connect/accept,
// epoll-style readiness polling, bonding/weight/token semantics,
// reconnection scheduling - a real implementation to exercise, atop a
// transport that is already reliable and ordered.
//
// There is no QUIC variant and no second forward pipeline: both are
// explicitly excluded by spec §9's Open Questions, which is why no
// quic.go exists in this package.
package xsocket
