package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TrackingInjector rewrites outgoing HTML so opens and clicks route
// through the tracking endpoints.
type TrackingInjector struct {
	BaseURL string
}

func NewTrackingInjector(baseURL string) *TrackingInjector {
	return &TrackingInjector{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

var hrefRegex = regexp.MustCompile(`(?i)(<a\b[^>]*?href=)(["'])([^"']*)(["'])`)

// skip prefixes and markers for links that must never be wrapped. A
// wrapped unsubscribe link would break list-hygiene flows, and the
// scheme-based ones are not HTTP at all.
var (
	skipSchemes = []string{"mailto:", "tel:", "sms:", "javascript:"}
	skipMarkers = []string{"unsubscribe", "optout", "opt-out", "preference"}
)

// NewTrackingID mints the opaque identifier stored on the campaign log
// and embedded in the tracking URLs.
func NewTrackingID() string {
	return uuid.New().String()
}

// PixelURL returns the open-tracking image URL for a send.
func (t *TrackingInjector) PixelURL(campaignID, contactID uint, trackingID string) string {
	return fmt.Sprintf("%s/track/open/%d/%d/%s", t.BaseURL, campaignID, contactID, trackingID)
}

// ClickURL returns the redirect URL that records a click before sending
// the recipient on to originalURL.
func (t *TrackingInjector) ClickURL(campaignID, contactID uint, trackingID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%d/%d/%s?url=%s",
		t.BaseURL, campaignID, contactID, trackingID, url.QueryEscape(originalURL))
}

// Inject wraps trackable links and appends the open pixel. Links are
// wrapped before the pixel is placed so the pixel's own URL is never
// rewritten. Skipped links pass through byte for byte.
func (t *TrackingInjector) Inject(html string, campaignID, contactID uint, trackingID string, trackOpens, trackClicks bool) string {
	out := html
	if trackClicks {
		out = t.wrapLinks(out, campaignID, contactID, trackingID)
	}
	if trackOpens {
		out = t.insertPixel(out, campaignID, contactID, trackingID)
	}
	return out
}

func (t *TrackingInjector) wrapLinks(html string, campaignID, contactID uint, trackingID string) string {
	return hrefRegex.ReplaceAllStringFunc(html, func(tag string) string {
		m := hrefRegex.FindStringSubmatch(tag)
		original := m[3]
		if !trackable(original) {
			return tag
		}
		return m[1] + m[2] + t.ClickURL(campaignID, contactID, trackingID, original) + m[4]
	})
}

func (t *TrackingInjector) insertPixel(html string, campaignID, contactID uint, trackingID string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		t.PixelURL(campaignID, contactID, trackingID))

	for _, closer := range []string{"</body>", "</BODY>", "</html>", "</HTML>"} {
		if idx := strings.LastIndex(html, closer); idx >= 0 {
			return html[:idx] + pixel + html[idx:]
		}
	}
	return html + pixel
}

// trackable reports whether a link may be rewritten through the click
// redirect.
func trackable(link string) bool {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range skipSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	for _, marker := range skipMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
