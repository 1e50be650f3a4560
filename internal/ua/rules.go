package ua

import "strings"

var botRe = MatchRe2(`(?<!cu)bot\b|crawl|spider|slurp|archiver|facebookexternalhit|` +
	`mediapartners|adsbot|bingpreview|feedfetcher|ahrefs|semrush|mj12|petalbot|yandex(?!browser)|` +
	`baiduspider|applebot|pingdom|uptimerobot|statuscake|site24x7|monitoring|` +
	`lighthouse|gtmetrix|pagespeed|whatsapp|` +
	`embedly|skypeuripreview|curl/|wget/|httpie|python-requests|python-urllib|aiohttp|` +
	`go-http-client|java/|okhttp|apache-httpclient|libwww-perl|axios/|node-fetch|undici|` +
	`scrapy|postmanruntime|insomnia|^mozilla/5\.0$`)

var headlessRe = MatchRe(`headlesschrome|phantomjs|slimerjs|puppeteer|playwright|selenium|` +
	`webdriver|htmlunit|nightmare|jsdom|cypress|splash|zombie\.js|electron/\S+ .*headless`)

type osRe struct {
	re      *ReMatch
	name    string
	version func(string) string
}

type clientRe struct {
	re   *ReMatch
	name string
}

type deviceRe struct {
	re   *ReMatch
	name string
}

func dotted(v string) string {
	return strings.ReplaceAll(v, "_", ".")
}

var windowsVersions = map[string]string{
	"10.0": "10",
	"6.3":  "8.1",
	"6.2":  "8",
	"6.1":  "7",
	"6.0":  "Vista",
	"5.1":  "XP",
	"5.2":  "XP",
}

func windows(v string) string {
	if x, ok := windowsVersions[v]; ok {
		return x
	}
	return v
}

// Order matters: iOS user agents claim to be "like Mac OS X" and Android ones
// claim to be Linux.
var osAll = []*osRe{
	{re: MatchRe(`windows phone(?: os)? (\d+(?:\.\d+)?)`), name: "Windows Phone"},
	{re: MatchRe(`windows nt (\d+\.\d+)`), name: "Windows", version: windows},
	{re: MatchRe(`windows`), name: "Windows"},
	{re: MatchRe(`(?:iphone|ipad|ipod).*? os (\d+(?:_\d+)?)`), name: "iOS", version: dotted},
	{re: MatchRe(`android[ /]?(\d+(?:\.\d+)?)`), name: "Android", version: dotted},
	{re: MatchRe(`android`), name: "Android"},
	{re: MatchRe(`cros \S+ (\d+\.\d+)`), name: "Chrome OS", version: dotted},
	{re: MatchRe(`mac os x (\d+(?:[_.]\d+)?)`), name: "Mac", version: dotted},
	{re: MatchRe(`macintosh`), name: "Mac"},
	{re: MatchRe(`ubuntu`), name: "Ubuntu"},
	{re: MatchRe(`fedora`), name: "Fedora"},
	{re: MatchRe(`freebsd`), name: "FreeBSD"},
	{re: MatchRe(`linux`), name: "GNU/Linux"},
}

// Order matters: most browsers embed Chrome and Safari tokens.
var browserAll = []*clientRe{
	{re: MatchRe(`edg(?:e|a|ios)?/(\d+)`), name: "Microsoft Edge"},
	{re: MatchRe(`(?:opr|opera)/(\d+)`), name: "Opera"},
	{re: MatchRe(`samsungbrowser/(\d+)`), name: "Samsung Browser"},
	{re: MatchRe(`yabrowser/(\d+)`), name: "Yandex Browser"},
	{re: MatchRe(`ucbrowser/(\d+)`), name: "UC Browser"},
	{re: MatchRe(`vivaldi/(\d+)`), name: "Vivaldi"},
	{re: MatchRe(`(?:firefox|fxios)/(\d+)`), name: "Firefox"},
	{re: MatchRe(`(?:headlesschrome|chrome|crios)/(\d+)`), name: "Chrome"},
	{re: MatchRe(`version/(\d+(?:\.\d+)?).*safari/`), name: "Safari"},
	{re: MatchRe(`(?:msie |trident/.*rv:)(\d+)`), name: "Internet Explorer"},
}

var deviceAll = []*deviceRe{
	{re: MatchRe2(`ipad|tablet|kindle|silk/|playbook|android(?!.*mobile)`), name: Tablet},
	{re: MatchRe(`mobi|iphone|ipod|windows phone|blackberry|opera mini|iemobile`), name: Mobile},
	{re: MatchRe(`windows nt|macintosh|x11|cros|linux x86_64`), name: Desktop},
}
