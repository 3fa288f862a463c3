// Package clipboard wraps the system pasteboard for copying answers out
// of the app.
package clipboard

// GetText returns the current clipboard text.
func GetText() (string, error) {
	return getClipboardText()
}

// SetText replaces the clipboard contents with text.
func SetText(text string) error {
	return setClipboardText(text)
}
