package ua

import (
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/vinceanalytics/collector/internal/must"
)

const Unknown = "unknown"

// Device classes.
const (
	Desktop    = "desktop"
	Mobile     = "mobile"
	Tablet     = "tablet"
	BotSuspect = "bot-suspect"
)

type Agent struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Bot            bool
	Headless       bool
}

var (
	cache     *ristretto.Cache
	cacheOnce sync.Once
)

func agents() *ristretto.Cache {
	cacheOnce.Do(func() {
		cache = must.Must(ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e6,
			MaxCost:     8 << 20,
			BufferItems: 64,
		}))("failed creating user agent cache")
	})
	return cache
}

// Get is Parse backed by a process wide cache keyed by the user agent string.
func Get(s string) Agent {
	c := agents()
	if v, ok := c.Get(s); ok {
		return v.(Agent)
	}
	a := Parse(s)
	c.Set(s, a, int64(len(s)))
	return a
}

// Parse classifies s using ordered rule tables. The first matching rule of
// each table wins and unmatched tables leave the field Unknown.
func Parse(s string) Agent {
	a := Agent{
		Browser:        Unknown,
		BrowserVersion: Unknown,
		OS:             Unknown,
		OSVersion:      Unknown,
		Device:         Unknown,
	}
	s = strings.TrimSpace(s)
	if !containsLetter(s) {
		return a
	}
	if IsBot(s) {
		a.Bot = true
		a.Device = BotSuspect
		return a
	}
	a.Headless = IsHeadless(s)
	parseOS(s, &a)
	parseBrowser(s, &a)
	parseDevice(s, &a)
	if a.Headless {
		a.Device = BotSuspect
	}
	return a
}

// IsBot reports whether s matches a known crawler, monitor or http library
// signature.
func IsBot(s string) bool {
	return botRe.MatchString(s)
}

// IsHeadless reports whether s carries a headless browser or automation
// framework signature.
func IsHeadless(s string) bool {
	return headlessRe.MatchString(s)
}

func parseOS(s string, a *Agent) {
	for _, e := range osAll {
		if e.re.MatchString(s) {
			a.OS = e.name
			if e.version != nil {
				a.OSVersion = e.version(e.re.FirstSubmatch(s))
			}
			if a.OSVersion == "" {
				a.OSVersion = Unknown
			}
			return
		}
	}
}

func parseBrowser(s string, a *Agent) {
	for _, e := range browserAll {
		if e.re.MatchString(s) {
			a.Browser = e.name
			if v := e.re.FirstSubmatch(s); v != "" {
				a.BrowserVersion = v
			}
			return
		}
	}
}

func parseDevice(s string, a *Agent) {
	for _, e := range deviceAll {
		if e.re.MatchString(s) {
			a.Device = e.name
			return
		}
	}
}

func containsLetter(ua string) bool {
	for _, c := range ua {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
