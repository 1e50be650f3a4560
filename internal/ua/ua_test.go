package ua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	chromeTablet  = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	edgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	headless      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"
	cubot         = "Mozilla/5.0 (Linux; Android 10; CUBOT X30) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Mobile Safari/537.36"
)

func TestParse(t *testing.T) {
	cases := []struct {
		ua   string
		want Agent
	}{
		{chromeWindows, Agent{Browser: "Chrome", BrowserVersion: "120", OS: "Windows", OSVersion: "10", Device: Desktop}},
		{safariMac, Agent{Browser: "Safari", BrowserVersion: "17.1", OS: "Mac", OSVersion: "10.15", Device: Desktop}},
		{safariIPhone, Agent{Browser: "Safari", BrowserVersion: "17.1", OS: "iOS", OSVersion: "17.1", Device: Mobile}},
		{chromeTablet, Agent{Browser: "Chrome", BrowserVersion: "119", OS: "Android", OSVersion: "13", Device: Tablet}},
		{edgeWindows, Agent{Browser: "Microsoft Edge", BrowserVersion: "120", OS: "Windows", OSVersion: "10", Device: Desktop}},
		{cubot, Agent{Browser: "Chrome", BrowserVersion: "110", OS: "Android", OSVersion: "10", Device: Mobile}},
	}
	for _, c := range cases {
		t.Run(c.want.Browser+"/"+c.want.OS, func(t *testing.T) {
			require.Equal(t, c.want, Parse(c.ua))
		})
	}
}

func TestBot(t *testing.T) {
	for _, s := range []string{
		"monitoring360bot/1.1",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
		"curl/8.4.0",
		"python-requests/2.31.0",
		"Go-http-client/1.1",
		"Mozilla/5.0",
	} {
		a := Parse(s)
		require.True(t, a.Bot, s)
		require.Equal(t, BotSuspect, a.Device, s)
		require.True(t, IsBot(s), s)
	}
	require.False(t, IsBot(chromeWindows))
	require.False(t, IsBot(cubot))
}

func TestHeadless(t *testing.T) {
	a := Parse(headless)
	require.False(t, a.Bot)
	require.True(t, a.Headless)
	require.Equal(t, BotSuspect, a.Device)
	require.Equal(t, "Chrome", a.Browser)
	require.False(t, IsHeadless(chromeWindows))
}

func TestUnknown(t *testing.T) {
	want := Agent{
		Browser: Unknown, BrowserVersion: Unknown,
		OS: Unknown, OSVersion: Unknown, Device: Unknown,
	}
	require.Equal(t, want, Parse(""))
	require.Equal(t, want, Parse("12345"))
	require.Equal(t, want, Parse("SomethingElse"))
}

func TestGetCaches(t *testing.T) {
	a := Get(chromeWindows)
	agents().Wait()
	require.Equal(t, a, Get(chromeWindows))
}
