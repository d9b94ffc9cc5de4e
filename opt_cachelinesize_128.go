//go:build accum_opt_cachelinesize_128

package accum

// CacheLineSize is fixed to 128 bytes by the accum_opt_cachelinesize_128 build tag.
// Apple silicon and some POWER parts prefetch adjacent line pairs.
const CacheLineSize uintptr = 128
