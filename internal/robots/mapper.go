package robots

import (
	"strings"
	"time"
)

// MapResponseToRuleSet resolves the user-agent group that applies to
// targetUserAgent and flattens it into a ruleSet. Group selection: an
// exact (case-insensitive) name wins outright; otherwise the longest
// name that prefixes the target wins; "*" is the fallback.
func MapResponseToRuleSet(response RobotsResponse, targetUserAgent string, fetchedAt time.Time) ruleSet {
	rs := ruleSet{
		host:      response.Host,
		userAgent: targetUserAgent,
		fetchedAt: fetchedAt,
		hasGroups: len(response.UserAgents) > 0,
	}

	group := bestMatchingGroup(response.UserAgents, targetUserAgent)
	if group == nil {
		return rs
	}
	rs.matchedGroup = true

	rs.allowRules = make([]pathRule, 0, len(group.Allows))
	for _, rule := range group.Allows {
		if rule.Path != "" {
			rs.allowRules = append(rs.allowRules, pathRule{prefix: leadingSlash(rule.Path)})
		}
	}
	rs.disallowRules = make([]pathRule, 0, len(group.Disallows))
	for _, rule := range group.Disallows {
		if rule.Path != "" {
			rs.disallowRules = append(rs.disallowRules, pathRule{prefix: leadingSlash(rule.Path)})
		}
	}

	if group.CrawlDelay != nil {
		delay := *group.CrawlDelay
		rs.crawlDelay = &delay
	}
	return rs
}

func bestMatchingGroup(groups []UserAgentGroup, targetUserAgent string) *UserAgentGroup {
	target := strings.ToLower(targetUserAgent)

	var best *UserAgentGroup
	bestLen := 0
	for i := range groups {
		for _, ua := range groups[i].UserAgents {
			name := strings.ToLower(ua)
			switch {
			case name == target:
				return &groups[i]
			case ua == "*":
				if best == nil {
					best = &groups[i]
				}
			case strings.HasPrefix(target, name) && len(name) > bestLen:
				best = &groups[i]
				bestLen = len(name)
			}
		}
	}
	return best
}

func leadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// CrawlDelay returns the group's Crawl-delay, copied so callers cannot
// alias the stored value.
func (r ruleSet) CrawlDelay() *time.Duration {
	if r.crawlDelay == nil {
		return nil
	}
	delay := *r.crawlDelay
	return &delay
}
