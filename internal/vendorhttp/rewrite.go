package vendorhttp

import "strings"

// rewriteRule is a one-shot endpoint rewrite: requests to matchPrefix are
// issued against rewritePrefix instead; if retryOnce404 is set and the
// rewritten path 404s, the client retries exactly once against the original
// path before giving up, since vendor endpoints that moved can still answer
// intermittently during the vendor's own migration.
type rewriteRule struct {
	matchPrefix   string
	rewritePrefix string
	retryOnce404  bool
}

// applyRewrite returns the path to actually request and whether a rule
// matched. Rules are checked in registration order; first match wins.
func (c *Client) applyRewrite(path string) (string, bool) {
	for _, rule := range c.rewrites {
		if strings.HasPrefix(path, rule.matchPrefix) {
			return rule.rewritePrefix + strings.TrimPrefix(path, rule.matchPrefix), true
		}
	}
	return path, false
}

// retryOnce404 reports whether the rule that rewrote path opts into a
// single 404-triggered retry against the original path.
func (c *Client) retryOnce404(path string) bool {
	for _, rule := range c.rewrites {
		if strings.HasPrefix(path, rule.matchPrefix) {
			return rule.retryOnce404
		}
	}
	return false
}

