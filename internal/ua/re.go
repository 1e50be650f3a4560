package ua

import (
	"regexp"
	"sync"

	re2 "github.com/dlclark/regexp2"
)

// ReMatch compiles lazily. Patterns that need look around use regexp2, the
// rest use the standard engine which is considerably faster.
type ReMatch struct {
	re  func() *regexp.Regexp
	re2 func() *re2.Regexp
}

func (r *ReMatch) MatchString(s string) bool {
	if r.re != nil {
		return r.re().MatchString(s)
	}
	ok, _ := r.re2().MatchString(s)
	return ok
}

// FirstSubmatch returns the first non empty capture group.
func (r *ReMatch) FirstSubmatch(s string) string {
	if r.re != nil {
		sub := r.re().FindStringSubmatch(s)
		for _, v := range sub[min(1, len(sub)):] {
			if v != "" {
				return v
			}
		}
		return ""
	}
	m, err := r.re2().FindStringMatch(s)
	if err != nil || m == nil {
		return ""
	}
	for _, g := range m.Groups()[1:] {
		if v := g.String(); v != "" {
			return v
		}
	}
	return ""
}

func MatchRe(s string) *ReMatch {
	return &ReMatch{re: sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile("(?i)" + s)
	})}
}

func MatchRe2(s string) *ReMatch {
	return &ReMatch{re2: sync.OnceValue(func() *re2.Regexp {
		return re2.MustCompile(s, re2.IgnoreCase)
	})}
}
