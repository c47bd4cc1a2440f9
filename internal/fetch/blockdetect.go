package fetch

import (
	"errors"
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot interference detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockShell      BlockType = "js_shell"
)

// BlockError marks a fetch rejected by bot protection. The ladder treats it
// as retryable on the same strategy (after a cooldown) and as grounds to
// escalate to the next strategy once retries run out.
type BlockError struct {
	Type       BlockType
	StatusCode int
}

func (e *BlockError) Error() string {
	return "fetch: blocked (" + string(e.Type) + ")"
}

// IsBlocked reports whether err carries a BlockError.
func IsBlocked(err error) bool {
	var be *BlockError
	return errors.As(err, &be)
}

// DetectBlock inspects a response for bot-protection signatures: challenge
// status codes with CDN headers, challenge-page body markers, and the tiny
// script-only shells served in place of real content.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) {
		h := resp.Header
		if h.Get("cf-ray") != "" || h.Get("cf-cache-status") != "" || strings.EqualFold(h.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return BlockCloudflare
	}
	if strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockShell
		}
	}

	return BlockNone
}

// minSubstantiveBytes is the smallest body a real results or profile page
// has been observed to carry.
const minSubstantiveBytes = 512

// Substantive reports whether a page looks like real content rather than a
// placeholder: it must carry a title and a non-trivial body.
func Substantive(title string, body []byte) bool {
	return strings.TrimSpace(title) != "" && len(body) >= minSubstantiveBytes
}
