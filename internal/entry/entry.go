package entry

import (
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Unknown is the placeholder for any enrichment field that could not be
// resolved.
const Unknown = "unknown"

// Class is the validity classification of an event.
type Class uint8

const (
	Human Class = iota
	Bot
	Invalid
)

func (c Class) String() string {
	switch c {
	case Human:
		return "human"
	case Bot:
		return "bot"
	default:
		return "invalid"
	}
}

func ParseClass(s string) Class {
	switch s {
	case "human":
		return Human
	case "bot":
		return Bot
	default:
		return Invalid
	}
}

// Families is a set of enrichment families that degraded to Unknown.
type Families uint8

const (
	Geo Families = 1 << iota
	Agent
	Referrer
)

func (f Families) Has(o Families) bool { return f&o != 0 }

func (f Families) Names() (o []string) {
	if f.Has(Geo) {
		o = append(o, "geo")
	}
	if f.Has(Agent) {
		o = append(o, "agent")
	}
	if f.Has(Referrer) {
		o = append(o, "referrer")
	}
	return
}

// RawEvent is an event as received by the intake. It is never mutated after
// it is handed to the pipeline.
type RawEvent struct {
	ID          uuid.UUID
	Name        string
	SiteID      string
	Properties  map[string]any
	Timestamp   time.Time
	ReceivedAt  time.Time
	IP          string
	UserAgent   string
	Referrer    string
	Page        string
	ScreenWidth int
	HashMode    bool
	// Enrich is the enrichment allowed flag handed over by the auth layer.
	Enrich bool
}

// VisitorContext is derived from (ip, user agent, referrer). Values are shared
// through the resolver cache and must be treated as read only.
type VisitorContext struct {
	Country        string
	Region         string
	City           string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Bot            bool
	Headless       bool
	Host           string
	Domain         string
	ReferrerDomain string
	ReferrerSource string
	SameSite       bool
	Degraded       Families
}

// UnknownContext returns a context with every field unresolved.
func UnknownContext() VisitorContext {
	return VisitorContext{
		Country:        Unknown,
		Region:         Unknown,
		City:           Unknown,
		Browser:        Unknown,
		BrowserVersion: Unknown,
		OS:             Unknown,
		OSVersion:      Unknown,
		Device:         Unknown,
		Host:           Unknown,
		Domain:         Unknown,
		ReferrerDomain: Unknown,
		ReferrerSource: Unknown,
		Degraded:       Geo | Agent | Referrer,
	}
}

// Session is the ephemeral record kept in the shared store for a session
// fingerprint. Absence after the inactivity window implies termination.
type Session struct {
	Fingerprint string    `json:"f"`
	SiteID      string    `json:"s"`
	Created     time.Time `json:"c"`
	LastSeen    time.Time `json:"l"`
	EntryPage   string    `json:"e"`
}

// EnrichedEvent is the unit handed to the batch writer.
type EnrichedEvent struct {
	ID          string
	Timestamp   time.Time
	SiteID      string
	Name        string
	Session     string
	NewSession  bool
	Class       Class
	Page        string
	Host        string
	UtmSource   string
	UtmMedium   string
	UtmCampaign string
	UtmContent  string
	UtmTerm     string
	Properties  map[string]any
	Context     VisitorContext
}

var eventPool = &sync.Pool{New: func() any { return new(EnrichedEvent) }}

// Enrich builds an EnrichedEvent. Timestamps are kept at millisecond
// precision in UTC, which is what storage persists.
func Enrich(raw *RawEvent, vc VisitorContext, fingerprint string, isNew bool, class Class) *EnrichedEvent {
	e := eventPool.Get().(*EnrichedEvent)
	*e = EnrichedEvent{
		ID:         raw.ID.String(),
		Timestamp:  time.UnixMilli(raw.Timestamp.UnixMilli()).UTC(),
		SiteID:     raw.SiteID,
		Name:       raw.Name,
		Session:    fingerprint,
		NewSession: isNew,
		Class:      class,
		Properties: raw.Properties,
		Context:    vc,
	}
	e.Page, e.Host = Path(raw.Page, raw.HashMode)
	if e.Host == "" {
		e.Host = vc.Host
	}
	if u, err := url.Parse(raw.Page); err == nil {
		q := u.Query()
		e.UtmSource = q.Get("utm_source")
		e.UtmMedium = q.Get("utm_medium")
		e.UtmCampaign = q.Get("utm_campaign")
		e.UtmContent = q.Get("utm_content")
		e.UtmTerm = q.Get("utm_term")
	}
	return e
}

// Release returns e to the pool. e must not be used afterwards.
func (e *EnrichedEvent) Release() {
	*e = EnrichedEvent{}
	eventPool.Put(e)
}

const maxPath = 2000

// Path returns the path (with fragment in hash mode) and host of page. page
// may be an absolute url or a bare path.
func Path(page string, hashMode bool) (path, host string) {
	u, err := url.Parse(page)
	if err != nil {
		return "/", ""
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	if hashMode && u.Fragment != "" {
		path += "#" + u.Fragment
	}
	if len(path) > maxPath {
		n := maxPath
		for n > 0 && !utf8.RuneStart(path[n]) {
			n--
		}
		path = path[:n]
	}
	return path, SanitizeHost(u.Host)
}

func SanitizeHost(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "www.")
}

// Screen maps a viewport width to a device class. Used when the user agent
// carries no device hint.
func Screen(width int) string {
	switch {
	case width <= 0:
		return ""
	case width < 576:
		return "mobile"
	case width < 992:
		return "tablet"
	case width < 1440:
		return "laptop"
	default:
		return "desktop"
	}
}
