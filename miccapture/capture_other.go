//go:build !darwin

package miccapture

// newPlatformImpl returns ErrUnsupported on non-macOS platforms.
func newPlatformImpl() (platformImpl, error) {
	return nil, ErrUnsupported
}
