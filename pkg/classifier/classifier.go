// Package classifier derives coarse click attributes (browser, OS, device
// type) from raw User-Agent strings and hashes visitor IPs so that raw
// addresses never reach storage. Callers treat it as a black box: whatever
// it returns, including "unknown", is stored as-is.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

// ClickInfo is the classification result for a single click.
type ClickInfo struct {
	Browser    string // Chrome, Firefox, Safari, ...
	OS         string // Windows, iOS, Android, ...
	DeviceType string // desktop, mobile, tablet, bot, unknown
}

// Classifier wraps the ua-parser engine.
type Classifier struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// New creates a Classifier. When regexesPath points to a uap-core regexes
// file it is used; otherwise the definitions compiled into the library are
// the fallback, so the classifier always works.
func New(regexesPath string, log *zap.Logger) *Classifier {
	if regexesPath != "" {
		if _, err := os.Stat(regexesPath); err == nil {
			parser, err := uaparser.New(regexesPath)
			if err == nil {
				log.Info("user-agent classifier initialized", zap.String("regexes_file", regexesPath))
				return &Classifier{parser: parser, log: log}
			}
			log.Warn("failed to load user-agent regexes file, falling back to embedded definitions",
				zap.String("regexes_file", regexesPath), zap.Error(err))
		}
	}

	return &Classifier{parser: uaparser.NewFromSaved(), log: log}
}

// Classify parses a raw User-Agent string.
func (c *Classifier) Classify(userAgent string) ClickInfo {
	if userAgent == "" {
		return ClickInfo{Browser: "unknown", OS: "unknown", DeviceType: "unknown"}
	}

	client := c.parser.Parse(userAgent)

	info := ClickInfo{
		Browser:    orUnknown(client.UserAgent.Family),
		OS:         orUnknown(client.Os.Family),
		DeviceType: deviceType(client, userAgent),
	}

	return info
}

// HashIP returns the hex-encoded SHA-256 of an IP address. The raw address
// is never persisted; the hash is stable, so distinct-visitor counts still
// work.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// ReferrerDomain extracts the host part of a referrer URL for aggregation.
// Returns the input unchanged when it does not look like a URL.
func ReferrerDomain(referrer string) string {
	s := referrer
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func deviceType(client *uaparser.Client, userAgent string) string {
	if isBot(client.UserAgent.Family, userAgent) {
		return "bot"
	}

	device := client.Device.Family
	if device != "" && device != "Other" {
		if containsAny(device, "iPad", "Tablet", "Kindle") {
			return "tablet"
		}
		if containsAny(device, "iPhone", "Android", "Mobile", "Phone", "BlackBerry") {
			return "mobile"
		}
	}

	switch client.Os.Family {
	case "iOS":
		if strings.Contains(userAgent, "iPad") {
			return "tablet"
		}
		return "mobile"
	case "Android":
		// Android tablets omit "Mobile" from the UA string.
		if !strings.Contains(userAgent, "Mobile") {
			return "tablet"
		}
		return "mobile"
	case "Windows", "Mac OS X", "Linux", "Ubuntu", "Chrome OS", "Fedora":
		return "desktop"
	}

	return "unknown"
}

func isBot(uaFamily, userAgent string) bool {
	indicators := []string{
		"Googlebot", "Bingbot", "Slurp", "DuckDuckBot", "Baiduspider",
		"YandexBot", "facebookexternalhit", "Twitterbot", "LinkedInBot",
		"TelegramBot", "bot", "crawler", "spider", "scraper",
	}

	for _, indicator := range indicators {
		if containsFold(uaFamily, indicator) || containsFold(userAgent, indicator) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func orUnknown(s string) string {
	if s == "" || s == "Other" {
		return "unknown"
	}
	return s
}
