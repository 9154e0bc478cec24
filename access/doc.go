// Package access is the value access layer: the fast cache tier in front of
// the persistent value store.
//
// A Get answers from the cache when it can and otherwise fetches from the
// store and admits the result. Every lookup is counted as a hit or miss under
// the "ValueManager" label, with the cache lookup timed under "mem" and the
// store round trip under "db". Concurrent misses for one id share a single
// store call.
package access
