// Package load generates synthetic sessions against a running collector.
package load

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/collector/internal/referrer"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var client = &http.Client{}

const apiPath = "/api/event"

func CMD() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Generates sessions and sends their events to a collector",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "vince",
				Usage: "URL of the collector to generate load for",
				Value: "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:  "website",
				Usage: "Website the generated page views belong to",
				Value: "https://example.com",
			},
			&cli.StringFlag{
				Name:  "site",
				Usage: "Site id to send events for",
				Value: "example.com",
			},
			&cli.IntFlag{
				Name:  "sessions",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Page views per session",
				Value: 5,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Dumps every request to stdout",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			p := &Program{
				Agents:   Agents(),
				Referrer: referrer.Random(10),
				Vince:    strings.TrimSuffix(c.String("vince"), "/"),
				Website:  strings.TrimSuffix(c.String("website"), "/"),
				Site:     c.String("site"),
				Debug:    c.Bool("debug"),
			}
			return p.Run(ctx, int(c.Int("sessions")), int(c.Int("pages")), int(c.Int("concurrency")))
		},
	}
}

// Agents is a pool of real browser user agents.
func Agents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}
}

var pages = []string{"/", "/pricing", "/blog", "/blog/launch", "/docs", "/about", "/signup"}

type Program struct {
	Referrer []string
	Agents   []string
	Vince    string
	Website  string
	Site     string
	Debug    bool
}

// Run sends n sessions of pages page views each, at most concurrency
// sessions at a time.
func (p *Program) Run(ctx context.Context, n, pages, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		s := p.NewSession()
		g.Go(func() error {
			return s.Browse(ctx, pages)
		})
	}
	return g.Wait()
}

func (p *Program) NewSession() *Session {
	return &Session{
		Ua:       p.Agents[rand.Intn(len(p.Agents))],
		Referrer: p.Referrer[rand.Intn(len(p.Referrer))],
		IP:       fmt.Sprintf("%d.%d.%d.%d", 1+rand.Intn(223), rand.Intn(256), rand.Intn(256), 1+rand.Intn(254)),
		Width:    []int{390, 820, 1280, 1920}[rand.Intn(4)],
		Site:     p.Site,
		Website:  p.Website,
		Vince:    p.Vince,
		Debug:    p.Debug,
	}
}

type Session struct {
	Ua       string
	Referrer string
	IP       string
	Width    int
	Site     string
	Website  string
	Vince    string
	Debug    bool
}

type event struct {
	N string `json:"n"`
	D string `json:"d"`
	U string `json:"u"`
	R string `json:"r,omitempty"`
	W int    `json:"w"`
}

// Browse sends page views, only the entry page carries the referrer.
func (s *Session) Browse(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		e := event{
			N: "pageview",
			D: s.Site,
			U: s.Website + pages[rand.Intn(len(pages))],
			W: s.Width,
		}
		if i == 0 {
			e.R = s.Referrer
		}
		if err := s.send(ctx, &e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) send(ctx context.Context, e *event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Vince+apiPath, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.Ua)
	req.Header.Set("X-Forwarded-For", s.IP)
	if s.Debug {
		b, _ := httputil.DumpRequestOut(req, true)
		os.Stdout.Write(b)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		data, _ = io.ReadAll(res.Body)
		return errors.New(res.Status + ": " + string(data))
	}
	return nil
}
