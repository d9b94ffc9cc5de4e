//go:build accum_opt_cachelinesize_64 && !accum_opt_cachelinesize_128

package accum

// CacheLineSize is fixed to 64 bytes by the accum_opt_cachelinesize_64 build tag.
const CacheLineSize uintptr = 64
