package robots

import "time"

// pathRule is one normalized Allow/Disallow prefix.
type pathRule struct {
	prefix string
}

// ruleSet is the admission view of a domain's robots.txt for one resolved
// user agent. Built once by MapResponseToRuleSet and read-only afterward.
type ruleSet struct {
	host      string
	userAgent string

	allowRules    []pathRule
	disallowRules []pathRule

	crawlDelay *time.Duration

	fetchedAt time.Time

	// matchedGroup: a user-agent group applied to our agent (possibly *).
	// hasGroups: the file had any groups at all. Both false means the
	// response was empty (404, blank file) and everything is allowed.
	matchedGroup bool
	hasGroups    bool
}
