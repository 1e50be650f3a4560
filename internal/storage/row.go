package storage

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/vinceanalytics/collector/internal/entry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is the fixed column schema of stored events. Property values are json
// encoded so nested values survive the round trip.
type Row struct {
	Timestamp      int64             `parquet:"timestamp" json:"timestamp"`
	ID             string            `parquet:"id,zstd" json:"id"`
	SiteID         string            `parquet:"site_id,dict,zstd" json:"site_id"`
	Session        string            `parquet:"session,zstd" json:"session"`
	NewSession     bool              `parquet:"new_session" json:"new_session"`
	Class          string            `parquet:"class,dict" json:"class"`
	Name           string            `parquet:"event,dict,zstd" json:"event"`
	Page           string            `parquet:"page,zstd" json:"page"`
	Host           string            `parquet:"host,dict,zstd" json:"host"`
	Domain         string            `parquet:"domain,dict,zstd" json:"domain"`
	ReferrerDomain string            `parquet:"referrer_domain,dict,zstd" json:"referrer_domain"`
	ReferrerSource string            `parquet:"referrer_source,dict,zstd" json:"referrer_source"`
	SameSite       bool              `parquet:"same_site" json:"same_site"`
	Country        string            `parquet:"country,dict,zstd" json:"country"`
	Region         string            `parquet:"region,dict,zstd" json:"region"`
	City           string            `parquet:"city,dict,zstd" json:"city"`
	Browser        string            `parquet:"browser,dict,zstd" json:"browser"`
	BrowserVersion string            `parquet:"browser_version,dict,zstd" json:"browser_version"`
	OS             string            `parquet:"os,dict,zstd" json:"os"`
	OSVersion      string            `parquet:"os_version,dict,zstd" json:"os_version"`
	Device         string            `parquet:"device,dict,zstd" json:"device"`
	Bot            bool              `parquet:"bot" json:"bot"`
	Headless       bool              `parquet:"headless" json:"headless"`
	Degraded       int32             `parquet:"degraded" json:"degraded"`
	UtmSource      string            `parquet:"utm_source,dict,zstd" json:"utm_source"`
	UtmMedium      string            `parquet:"utm_medium,dict,zstd" json:"utm_medium"`
	UtmCampaign    string            `parquet:"utm_campaign,dict,zstd" json:"utm_campaign"`
	UtmContent     string            `parquet:"utm_content,dict,zstd" json:"utm_content"`
	UtmTerm        string            `parquet:"utm_term,dict,zstd" json:"utm_term"`
	Props          map[string]string `parquet:"props" json:"props,omitempty"`
}

func FromEvent(e *entry.EnrichedEvent) Row {
	c := &e.Context
	return Row{
		Timestamp:      e.Timestamp.UnixMilli(),
		ID:             e.ID,
		SiteID:         e.SiteID,
		Session:        e.Session,
		NewSession:     e.NewSession,
		Class:          e.Class.String(),
		Name:           e.Name,
		Page:           e.Page,
		Host:           e.Host,
		Domain:         c.Domain,
		ReferrerDomain: c.ReferrerDomain,
		ReferrerSource: c.ReferrerSource,
		SameSite:       c.SameSite,
		Country:        c.Country,
		Region:         c.Region,
		City:           c.City,
		Browser:        c.Browser,
		BrowserVersion: c.BrowserVersion,
		OS:             c.OS,
		OSVersion:      c.OSVersion,
		Device:         c.Device,
		Bot:            c.Bot,
		Headless:       c.Headless,
		Degraded:       int32(c.Degraded),
		UtmSource:      e.UtmSource,
		UtmMedium:      e.UtmMedium,
		UtmCampaign:    e.UtmCampaign,
		UtmContent:     e.UtmContent,
		UtmTerm:        e.UtmTerm,
		Props:          encodeProps(e.Properties),
	}
}

// Event reverses FromEvent. The page host of the context is not stored
// separately from the event host.
func (r *Row) Event() *entry.EnrichedEvent {
	return &entry.EnrichedEvent{
		ID:          r.ID,
		Timestamp:   time.UnixMilli(r.Timestamp).UTC(),
		SiteID:      r.SiteID,
		Name:        r.Name,
		Session:     r.Session,
		NewSession:  r.NewSession,
		Class:       entry.ParseClass(r.Class),
		Page:        r.Page,
		Host:        r.Host,
		UtmSource:   r.UtmSource,
		UtmMedium:   r.UtmMedium,
		UtmCampaign: r.UtmCampaign,
		UtmContent:  r.UtmContent,
		UtmTerm:     r.UtmTerm,
		Properties:  decodeProps(r.Props),
		Context: entry.VisitorContext{
			Country:        r.Country,
			Region:         r.Region,
			City:           r.City,
			Browser:        r.Browser,
			BrowserVersion: r.BrowserVersion,
			OS:             r.OS,
			OSVersion:      r.OSVersion,
			Device:         r.Device,
			Bot:            r.Bot,
			Headless:       r.Headless,
			Host:           r.Host,
			Domain:         r.Domain,
			ReferrerDomain: r.ReferrerDomain,
			ReferrerSource: r.ReferrerSource,
			SameSite:       r.SameSite,
			Degraded:       entry.Families(r.Degraded),
		},
	}
}

func encodeProps(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	o := make(map[string]string, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			// values come from decoded json, this only happens for values
			// constructed in process
			continue
		}
		o[k] = string(b)
	}
	return o
}

func decodeProps(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	o := make(map[string]any, len(m))
	for k, v := range m {
		var x any
		if err := json.Unmarshal([]byte(v), &x); err != nil {
			x = v
		}
		o[k] = x
	}
	return o
}
