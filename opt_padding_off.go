//go:build accum_opt_disable_padding

package accum

const enablePadding = false

// cell is one independently CAS-able word of a striped value.
type cell struct {
	v atomicUint64
}
