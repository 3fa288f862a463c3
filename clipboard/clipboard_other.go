//go:build !darwin

package clipboard

import "errors"

var errUnsupported = errors.New("clipboard not supported on this platform")

func getClipboardText() (string, error) {
	return "", errUnsupported
}

func setClipboardText(string) error {
	return errUnsupported
}
