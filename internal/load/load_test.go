package load

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/referrer"
)

type seen struct {
	N string `json:"n"`
	D string `json:"d"`
	U string `json:"u"`
	R string `json:"r"`
}

func TestRun(t *testing.T) {
	var mu sync.Mutex
	visitors := map[string][]seen{}
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e seen
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key := r.Header.Get("X-Forwarded-For") + "|" + r.UserAgent()
		mu.Lock()
		visitors[key] = append(visitors[key], e)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer svr.Close()

	p := &Program{
		Agents:   Agents(),
		Referrer: referrer.Random(3),
		Vince:    svr.URL,
		Website:  "https://example.com",
		Site:     "example.com",
	}
	require.NoError(t, p.Run(context.Background(), 3, 4, 2))

	var total int
	for _, events := range visitors {
		total += len(events)
		require.NotEmpty(t, events[0].R)
		for _, e := range events {
			require.Equal(t, "example.com", e.D)
			require.Equal(t, "pageview", e.N)
			require.Contains(t, e.U, "https://example.com/")
		}
	}
	require.Equal(t, 12, total)
}

func TestRunReportsRejection(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown site", http.StatusNotFound)
	}))
	defer svr.Close()
	p := &Program{Agents: Agents(), Referrer: referrer.Random(1), Vince: svr.URL, Site: "x"}
	err := p.Run(context.Background(), 1, 1, 1)
	require.ErrorContains(t, err, "unknown site")
}
