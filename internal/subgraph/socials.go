package subgraph

import (
	"strings"

	"launchpad-terminal/internal/domain"
)

var socialMarkers = []struct {
	set     func(*domain.Socials, string)
	markers []string
}{
	{func(s *domain.Socials, v string) { s.Twitter = v }, []string{"twitter.com", "x.com"}},
	{func(s *domain.Socials, v string) { s.Telegram = v }, []string{"t.me", "telegram"}},
	{func(s *domain.Socials, v string) { s.Discord = v }, []string{"discord.gg", "discord.com"}},
}

// ClassifySocials sorts raw social strings into twitter, telegram and
// discord by substring, in that priority. A classified string leaves the
// pool; the first string left over becomes the website.
func ClassifySocials(raw ...string) domain.Socials {
	pool := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			pool = append(pool, withScheme(r))
		}
	}

	var out domain.Socials
	for _, kind := range socialMarkers {
		for i, link := range pool {
			if containsAny(strings.ToLower(link), kind.markers) {
				kind.set(&out, link)
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}
	if len(pool) > 0 {
		out.Website = pool[0]
	}
	return out
}

// mergeSocials fills empty fields of base from extra.
func mergeSocials(base, extra domain.Socials) domain.Socials {
	if base.Website == "" {
		base.Website = extra.Website
	}
	if base.Twitter == "" {
		base.Twitter = extra.Twitter
	}
	if base.Telegram == "" {
		base.Telegram = extra.Telegram
	}
	if base.Discord == "" {
		base.Discord = extra.Discord
	}
	return base
}

func withScheme(link string) string {
	if strings.Contains(link, "://") {
		return link
	}
	return "https://" + link
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
