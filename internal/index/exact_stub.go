//go:build !arm64 || novec

package index

// exactAvailable reports whether this build carries the exact backend.
// viant/vec ships native cosine kernels for arm64 only; other platforms and
// builds tagged novec use the flat backend.
const exactAvailable = false

// newExact always fails in novec builds.
func newExact(int) (Index, error) {
	return nil, ErrExactUnavailable
}
