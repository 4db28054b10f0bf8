package portals

import "strings"

// turnstileHiddenMarker appears when the portal's CAPTCHA modal rendered
// but stayed hidden, meaning the page behind it is real content.
const turnstileHiddenMarker = `turnstile-modal" class="d-none`

// IsBlocked reports whether the rendered page is a bot challenge rather
// than search results. The challenge prompt text is the positive signal;
// a hidden challenge modal clears it, since result pages ship the modal
// markup in a dismissed state.
func IsBlocked(html string) bool {
	if strings.Contains(html, turnstileHiddenMarker) {
		return false
	}
	return strings.Contains(strings.ToLower(html), "check the box")
}
