package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestInjector() *TrackingInjector {
	return NewTrackingInjector("https://mail.example.com")
}

func TestInjectWrapsHTTPLinks(t *testing.T) {
	inj := newTestInjector()
	html := `<p><a href="https://acme.io/pricing">Pricing</a></p>`

	out := inj.Inject(html, 1, 2, "tid-1", false, true)

	assert.Contains(t, out, `href="https://mail.example.com/track/click/1/2/tid-1?url=https%3A%2F%2Facme.io%2Fpricing"`)
	assert.NotContains(t, out, `href="https://acme.io/pricing"`)
}

func TestInjectLeavesSkippedLinksUntouched(t *testing.T) {
	inj := newTestInjector()

	skipped := []string{
		`<a href="mailto:sales@acme.io">Mail us</a>`,
		`<a href="tel:+15551234567">Call</a>`,
		`<a href="sms:+15551234567">Text</a>`,
		`<a href="javascript:void(0)">Click</a>`,
		`<a href="#section-2">Jump</a>`,
		`<a href="https://acme.io/unsubscribe?u=1">Unsubscribe</a>`,
		`<a href="https://acme.io/optout">Opt out</a>`,
		`<a href="https://acme.io/preferences">Preferences</a>`,
	}
	for _, html := range skipped {
		out := inj.Inject(html, 1, 2, "tid-1", false, true)
		assert.Equal(t, html, out, "skip-listed link must pass through byte for byte")
	}
}

func TestInjectPixelPlacement(t *testing.T) {
	inj := newTestInjector()
	pixelURL := inj.PixelURL(3, 4, "tid-2")

	withBody := `<html><body><p>Hi</p></body></html>`
	out := inj.Inject(withBody, 3, 4, "tid-2", true, false)
	assert.Contains(t, out, pixelURL)
	assert.Less(t, strings.Index(out, pixelURL), strings.Index(out, "</body>"))

	noBody := `<p>Hi</p>`
	out = inj.Inject(noBody, 3, 4, "tid-2", true, false)
	assert.True(t, strings.HasSuffix(out, `style="display:none">`))
	assert.Contains(t, out, pixelURL)
}

func TestInjectPixelNotClickWrapped(t *testing.T) {
	inj := newTestInjector()
	html := `<body><a href="https://acme.io">Go</a></body>`

	out := inj.Inject(html, 5, 6, "tid-3", true, true)

	// exactly one click redirect: the real link, never the pixel
	assert.Equal(t, 1, strings.Count(out, "/track/click/"))
	assert.Equal(t, 1, strings.Count(out, "/track/open/"))
}

func TestInjectRespectsTrackingFlags(t *testing.T) {
	inj := newTestInjector()
	html := `<body><a href="https://acme.io">Go</a></body>`

	out := inj.Inject(html, 1, 1, "tid-4", false, false)

	assert.Equal(t, html, out)
}

func TestInjectSingleQuotedHref(t *testing.T) {
	inj := newTestInjector()
	html := `<a href='https://acme.io/x'>Go</a>`

	out := inj.Inject(html, 1, 2, "tid-5", false, true)

	assert.Contains(t, out, "/track/click/1/2/tid-5")
}
