package referrer

import (
	"math/rand"
	"sort"
)

var refList = map[string]string{
	"news.ycombinator.com": "Hacker News",
	"t.co":                 "Twitter",
	"twitter.com":          "Twitter",
	"x.com":                "Twitter",
	"facebook.com":         "Facebook",
	"fb.me":                "Facebook",
	"l.facebook.com":       "Facebook",
	"instagram.com":        "Instagram",
	"linkedin.com":         "LinkedIn",
	"lnkd.in":              "LinkedIn",
	"reddit.com":           "Reddit",
	"youtube.com":          "Youtube",
	"youtu.be":             "Youtube",
	"github.com":           "GitHub",
	"duckduckgo.com":       "DuckDuckGo",
	"bing.com":             "Bing",
	"ecosia.org":           "Ecosia",
	"search.brave.com":     "Brave",
	"pinterest.com":        "Pinterest",
	"tiktok.com":           "TikTok",
	"producthunt.com":      "Product Hunt",
	"medium.com":           "Medium",
	"stackoverflow.com":    "Stack Overflow",
	"mail.google.com":      "Gmail",
	"outlook.live.com":     "Outlook.com",
	"chatgpt.com":          "ChatGPT",
	"perplexity.ai":        "Perplexity",
}

// refLabels matches the first label of the registrable domain for engines
// with per country domains.
var refLabels = map[string]string{
	"google": "Google",
	"yandex": "Yandex",
	"yahoo":  "Yahoo!",
	"baidu":  "Baidu",
	"naver":  "Naver",
	"amazon": "Amazon",
}

// Random returns up to n referrer urls of known sources.
func Random(n int) []string {
	hosts := make([]string, 0, len(refList))
	for h := range refList {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	rand.Shuffle(len(hosts), func(i, j int) { hosts[i], hosts[j] = hosts[j], hosts[i] })
	if n > len(hosts) {
		n = len(hosts)
	}
	o := make([]string, n)
	for i := range o {
		o[i] = "https://" + hosts[i] + "/"
	}
	return o
}
