package robots

import "time"

// RobotsResponse is the parsed form of one robots.txt body. It is a plain
// transcription of the file; admission decisions go through ruleSet,
// which resolves the user-agent group first.
type RobotsResponse struct {
	Host string

	// Sitemap: directives. These are global, not per user-agent.
	Sitemaps []string

	// One group per user-agent block, in file order.
	UserAgents []UserAgentGroup
}

// UserAgentGroup is one user-agent block: the agents it names and the
// rules that apply to them.
type UserAgentGroup struct {
	UserAgents []string
	Allows     []PathRule
	Disallows  []PathRule
	CrawlDelay *time.Duration
}

// PathRule is a single Allow: or Disallow: line's path pattern.
type PathRule struct {
	Path string
}
