// Package resource governs resources shared by all tiers of an engine.
//
//   - Memory: resident vector bytes across caches. Reservations never block;
//     a cache that cannot reserve simply does not admit the entry.
//   - Fetch workers: bounds the fan-out of bulk value-store reads.
//   - Store IO: token bucket applied to bytes read from remote stores.
//
// A nil *Controller is valid and turns every call into a no-op, so callers
// never need to check whether governance is configured:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	    FetchWorkers:     8,
//	})
//	if !rc.TryReserve(int64(len(v) * 4)) {
//	    return // not cached
//	}
//	defer rc.Release(int64(len(v) * 4))
package resource
