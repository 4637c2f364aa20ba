package robots

import "strings"

// IsAllowed reports whether path may be crawled under this rule set.
// Matching follows the common robots.txt convention: the longest matching
// prefix rule wins; if an allow and a disallow rule tie on prefix length,
// allow wins. A rule set with no matching group defaults to allow.
func (r ruleSet) IsAllowed(path string) bool {
	if !r.hasGroups || !r.matchedGroup {
		return true
	}

	bestLen := -1
	allowed := true

	for _, rule := range r.disallowRules {
		if rule.prefix == "" {
			continue
		}
		if strings.HasPrefix(path, rule.prefix) && len(rule.prefix) > bestLen {
			bestLen = len(rule.prefix)
			allowed = false
		}
	}
	for _, rule := range r.allowRules {
		if rule.prefix == "" {
			continue
		}
		if strings.HasPrefix(path, rule.prefix) && len(rule.prefix) >= bestLen {
			bestLen = len(rule.prefix)
			allowed = true
		}
	}

	return allowed
}
