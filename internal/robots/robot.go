package robots

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/fetchward/crawlkit/internal/metadata"
	"github.com/fetchward/crawlkit/internal/robots/cache"
)

// Robot is the scheduler-facing contract for robots.txt admission
// decisions. CachedRobot is the sole production implementation.
type Robot interface {
	Init(userAgent string)
	Decide(u url.URL) (Decision, *RobotsError)
}

// CachedRobot evaluates crawl permissions against a host's robots.txt.
// It fetches and caches the ruleset per host (via RobotsFetcher's own
// cache wiring), so repeated Decide calls for the same host do not
// refetch robots.txt.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	fetcher      *RobotsFetcher
}

// NewCachedRobot constructs a CachedRobot bound to the given metadata
// sink. Call Init or InitWithCache before Decide.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: metadataSink}
}

// Init wires a default in-memory cache for this robot.
func (c *CachedRobot) Init(userAgent string) {
	c.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache wires a caller-supplied cache implementation, letting
// callers share a robots cache across multiple CachedRobot instances or
// swap in a persistent implementation.
func (c *CachedRobot) InitWithCache(userAgent string, robotsCache cache.Cache) {
	c.userAgent = userAgent
	c.fetcher = NewRobotsFetcher(c.metadataSink, userAgent, robotsCache)
}

// Decide fetches (or reuses the cached) robots.txt for the URL's host
// and reports whether the user agent this CachedRobot was initialized
// with may crawl it.
//
// A robots.txt that cannot be fetched or parsed -- network failure,
// server error, or a WAF/challenge page served in its place -- is
// never treated as "no restrictions apply". This crawler has no way
// to know what the real robots.txt would have said, so it applies the
// conservative policy: disallow the host for this decision rather
// than risk crawling somewhere it was never actually permitted to.
// The error is still recorded for observability, but it no longer
// propagates as a decision failure.
func (c *CachedRobot) Decide(u url.URL) (Decision, *RobotsError) {
	result, fetchErr := c.fetcher.Fetch(context.Background(), u.Scheme, u.Host)
	if fetchErr != nil {
		c.metadataSink.RecordError(
			time.Now(),
			"robots",
			"CachedRobot.Decide",
			mapRobotsErrorToMetadataCause(fetchErr),
			fetchErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, u.String()),
			},
		)
		return Decision{Url: u, Allowed: false, Reason: ConservativeDisallow}, nil
	}

	rules := MapResponseToRuleSet(result.Response, c.userAgent, result.FetchedAt)

	decision := Decision{Url: u}
	if delay := rules.CrawlDelay(); delay != nil {
		decision.CrawlDelay = *delay
	}

	switch {
	case !rules.hasGroups:
		decision.Allowed = true
		decision.Reason = EmptyRuleSet
	case !rules.matchedGroup:
		decision.Allowed = true
		decision.Reason = UserAgentNotMatched
	default:
		decision.Allowed, decision.Reason = evaluatePath(rules, u.Path)
	}

	return decision, nil
}

// evaluatePath applies longest-match-wins precedence between a ruleSet's
// allow and disallow rules, with allow winning ties, per the matched
// user-agent group.
func evaluatePath(rules ruleSet, path string) (bool, DecisionReason) {
	if path == "" {
		path = "/"
	}

	allowRule, allowMatched := bestRuleMatch(rules.AllowRules(), path)
	disallowRule, disallowMatched := bestRuleMatch(rules.DisallowRules(), path)

	switch {
	case !allowMatched && !disallowMatched:
		return true, NoMatchingRules
	case allowMatched && !disallowMatched:
		return true, AllowedByRobots
	case !allowMatched && disallowMatched:
		return false, DisallowedByRobots
	default:
		if len(allowRule.Prefix()) >= len(disallowRule.Prefix()) {
			return true, AllowedByRobots
		}
		return false, DisallowedByRobots
	}
}

// bestRuleMatch returns the longest pattern among rules that matches
// path, per robots.txt's most-specific-rule-wins convention.
func bestRuleMatch(rules []pathRule, path string) (pathRule, bool) {
	var best pathRule
	found := false
	bestLen := -1
	for _, r := range rules {
		if matchesPattern(path, r.Prefix()) && len(r.Prefix()) > bestLen {
			bestLen = len(r.Prefix())
			best = r
			found = true
		}
	}
	return best, found
}

// matchesPattern implements robots.txt path matching with "*" wildcard
// and "$" end-of-path anchor support. The pattern always anchors at the
// start of path, since robots.txt rules are implicitly rooted.
func matchesPattern(path, pattern string) bool {
	endAnchor := strings.HasSuffix(pattern, "$")
	if endAnchor {
		pattern = pattern[:len(pattern)-1]
	}

	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}

	if endAnchor && pos != len(path) {
		return false
	}
	return true
}
