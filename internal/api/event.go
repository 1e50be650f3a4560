package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinceanalytics/collector/internal/entry"
	verrors "github.com/vinceanalytics/collector/internal/errors"
	"github.com/vinceanalytics/collector/internal/metrics"
	"github.com/vinceanalytics/collector/internal/pipeline"
)

// MaxBody is the largest accepted request body.
const MaxBody = 32 << 10

// Request is a single event as sent by an SDK. Short aliases are the ones
// used by the browser script.
type Request struct {
	Event       string         `json:"event"`
	N           string         `json:"n"`
	SiteID      string         `json:"site_id"`
	D           string         `json:"d"`
	Timestamp   Timestamp      `json:"timestamp"`
	Properties  map[string]any `json:"properties"`
	Props       map[string]any `json:"props"`
	P           map[string]any `json:"p"`
	Page        string         `json:"page"`
	URL         string         `json:"url"`
	U           string         `json:"u"`
	Referrer    string         `json:"referrer"`
	R           string         `json:"r"`
	ScreenWidth int            `json:"w"`
	HashMode    bool           `json:"h"`
}

// Timestamp is an RFC3339 string or unix milliseconds. A value that is
// present but cannot be parsed decodes to the zero time with Set true.
type Timestamp struct {
	Time time.Time
	Set  bool
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "" || s == "null" {
		return nil
	}
	t.Set = true
	t.Time = parseTimestamp(s)
	return nil
}

func parseTimestamp(s string) time.Time {
	if uq, err := strconv.Unquote(s); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, uq); err == nil {
			return ts.UTC()
		}
		s = uq
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Time{}
}

var bufPool = &sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// Decode reads a single event object or an array of them. Bodies larger
// than MaxBody are rejected without being decoded.
func Decode(body io.Reader) ([]Request, error) {
	b := bufPool.Get().(*bytes.Buffer)
	defer func() {
		b.Reset()
		bufPool.Put(b)
	}()
	n, err := b.ReadFrom(io.LimitReader(body, MaxBody+1))
	if err != nil {
		return nil, verrors.Validation("failed reading body: %v", err)
	}
	if n > MaxBody {
		return nil, verrors.Validation("body exceeds %d bytes", MaxBody)
	}
	data := bytes.TrimSpace(b.Bytes())
	if len(data) == 0 {
		return nil, verrors.Validation("empty body")
	}
	if data[0] == '[' {
		var ls []Request
		if err := json.Unmarshal(data, &ls); err != nil {
			return nil, verrors.Validation("invalid json: %v", err)
		}
		if len(ls) == 0 {
			return nil, verrors.Validation("no events")
		}
		return ls, nil
	}
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, verrors.Validation("invalid json: %v", err)
	}
	return []Request{r}, nil
}

// Ambient is request metadata that is not part of the payload.
type Ambient struct {
	IP         string
	UserAgent  string
	Referer    string
	ReceivedAt time.Time
}

// Raw validates r and builds the raw event. A missing timestamp defaults to
// the receive time.
func (r *Request) Raw(a Ambient) (*entry.RawEvent, error) {
	e := &entry.RawEvent{
		ID:          uuid.New(),
		Name:        first(r.Event, r.N),
		SiteID:      strings.TrimSpace(first(r.SiteID, r.D)),
		Properties:  r.Properties,
		ReceivedAt:  a.ReceivedAt,
		IP:          a.IP,
		UserAgent:   a.UserAgent,
		Page:        first(r.Page, r.URL, r.U),
		Referrer:    first(r.Referrer, r.R),
		ScreenWidth: r.ScreenWidth,
		HashMode:    r.HashMode,
	}
	if e.Properties == nil {
		e.Properties = r.Props
	}
	if e.Properties == nil {
		e.Properties = r.P
	}
	if e.Name == "" {
		return nil, verrors.Validation("event is required")
	}
	if e.SiteID == "" {
		return nil, verrors.Validation("site_id is required")
	}
	e.Timestamp = a.ReceivedAt
	if r.Timestamp.Set {
		e.Timestamp = r.Timestamp.Time
	}
	switch {
	case e.Page == "":
		// browsers send the page that fired the beacon as Referer
		e.Page = a.Referer
	case e.Referrer == "" && a.Referer != "" && !sameHost(a.Referer, e.Page):
		e.Referrer = a.Referer
	}
	if e.Page != "" {
		u, err := url.Parse(e.Page)
		if err != nil {
			return nil, verrors.Validation("invalid page url: %v", err)
		}
		if u.Scheme == "data" {
			return nil, verrors.Validation("invalid page url scheme")
		}
	}
	return e, nil
}

// Event accepts event payloads. The response acknowledges syntactic validity
// only: events dropped as bots or duplicates still count as accepted.
func (a *API) Event(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	ls, err := Decode(r.Body)
	if err != nil {
		a.reject(w, http.StatusBadRequest, err)
		return
	}
	amb := Ambient{
		IP:         remoteIP(r),
		UserAgent:  r.UserAgent(),
		Referer:    r.Referer(),
		ReceivedAt: a.now().UTC(),
	}
	raws := make([]*entry.RawEvent, 0, len(ls))
	for i := range ls {
		e, err := ls[i].Raw(amb)
		if err != nil {
			a.reject(w, http.StatusBadRequest, err)
			return
		}
		enrich, ok := a.sites.Lookup(e.SiteID)
		if !ok {
			a.reject(w, http.StatusNotFound, errors.New("unknown site "+strconv.Quote(e.SiteID)))
			return
		}
		e.Enrich = enrich
		raws = append(raws, e)
	}
	var accepted, refused int
	for _, e := range raws {
		if !a.sites.Allow(e.SiteID) {
			metrics.EventRejected.WithLabelValues(metrics.ReasonRateLimit).Inc()
			refused++
			continue
		}
		o, err := a.pipe.Process(r.Context(), e)
		if o == pipeline.Backpressure {
			a.log.Debug("event refused", "site", e.SiteID, "err", err)
			refused++
			continue
		}
		accepted++
	}
	if accepted == 0 && refused > 0 {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many events, retry later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (a *API) reject(w http.ResponseWriter, code int, err error) {
	metrics.EventRejected.WithLabelValues(metrics.ReasonInvalid).Inc()
	a.log.Debug("rejected request", "code", code, "err", err)
	writeError(w, code, err.Error())
}

func first(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func sameHost(a, b string) bool {
	x, err := url.Parse(a)
	if err != nil {
		return false
	}
	y, err := url.Parse(b)
	if err != nil {
		return false
	}
	return entry.SanitizeHost(x.Host) == entry.SanitizeHost(y.Host)
}
