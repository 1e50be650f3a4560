package guard

import (
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/vinceanalytics/collector/internal/config"
	"golang.org/x/time/rate"
)

// Sites is the view of the external site registry: which site ids are
// accepted and whether they allow enrichment. With no configured sites every
// site id is accepted with enrichment.
//
// Configured sites get a limiter each, held for the life of Sites. With no
// configured sites limiters live in a bounded cache and a site evicted from
// it starts again with a full burst, so limiting is best effort.
type Sites struct {
	enrich   map[string]bool
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	rate     *ristretto.Cache
	mu       sync.Mutex
}

func NewSites(ls []config.Site, perSecond, burst int) (*Sites, error) {
	s := &Sites{
		enrich: make(map[string]bool, len(ls)),
		limit:  rate.Inf,
	}
	for _, x := range ls {
		s.enrich[x.ID] = !x.DisableEnrich
	}
	if perSecond > 0 {
		s.limit = rate.Limit(perSecond)
		s.burst = burst
		if s.burst <= 0 {
			s.burst = perSecond
		}
		if len(ls) > 0 {
			s.limiters = make(map[string]*rate.Limiter, len(ls))
			for _, x := range ls {
				s.limiters[x.ID] = rate.NewLimiter(s.limit, s.burst)
			}
			return s, nil
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     1 << 13,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		s.rate = cache
	}
	return s, nil
}

// Lookup returns the enrichment flag of site and whether it is accepted.
func (s *Sites) Lookup(site string) (enrich, ok bool) {
	if len(s.enrich) == 0 {
		return site != "", site != ""
	}
	enrich, ok = s.enrich[site]
	return
}

// Allow reports whether site is within its rate limit.
func (s *Sites) Allow(site string) bool {
	if s.limit == rate.Inf {
		return true
	}
	if s.limiters != nil {
		l, ok := s.limiters[site]
		return ok && l.Allow()
	}
	if x, ok := s.rate.Get(site); ok {
		return x.(*rate.Limiter).Allow()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, ok := s.rate.Get(site); ok {
		return x.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.rate.Set(site, l, 1)
	// make the limiter visible to the next caller
	s.rate.Wait()
	return l.Allow()
}

func (s *Sites) Close() {
	if s.rate != nil {
		s.rate.Close()
	}
}
