package utils

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mailblast/models"
)

func testContact() *models.Contact {
	c := &models.Contact{
		Email:     "jordan@acme.io",
		FirstName: "Jordan",
		LastName:  "Lee",
		Company:   "Acme",
		CustomFields: []models.ContactCustomField{
			{Name: "plan", Value: "enterprise"},
		},
	}
	c.ID = 7
	return c
}

func TestPersonalizeFields(t *testing.T) {
	p := NewPersonalizer("https://mail.example.com")

	out := p.Personalize("Hi {{firstName}} from {{company}}, plan: {{plan}}", testContact(), 0)

	assert.Equal(t, "Hi Jordan from Acme, plan: enterprise", out)
}

func TestPersonalizeUnknownFieldIsEmpty(t *testing.T) {
	p := NewPersonalizer("")

	out := p.Personalize("Hello {{nickname}}!", testContact(), 0)

	assert.Equal(t, "Hello !", out)
}

func TestPersonalizeFallback(t *testing.T) {
	p := NewPersonalizer("")
	contact := &models.Contact{Email: "x@y.com", FirstName: ""}

	out := p.Personalize(`Hi {{firstName | "Friend"}}`, contact, 0)
	assert.Equal(t, "Hi Friend", out)

	out = p.Personalize(`Hi {{firstName | "Friend"}}`, testContact(), 0)
	assert.Equal(t, "Hi Jordan", out)
}

func TestPersonalizeConditionals(t *testing.T) {
	p := NewPersonalizer("")

	tpl := "{{#if company}}Works at {{company}}.{{else}}Independent.{{/if}}"
	assert.Equal(t, "Works at Acme.", p.Personalize(tpl, testContact(), 0))

	solo := &models.Contact{Email: "x@y.com"}
	assert.Equal(t, "Independent.", p.Personalize(tpl, solo, 0))

	unless := "{{#unless phone}}No phone on file.{{/unless}}"
	assert.Equal(t, "No phone on file.", p.Personalize(unless, solo, 0))
	assert.Equal(t, "", p.Personalize(unless, &models.Contact{Email: "x@y.com", Phone: "555"}, 0))
}

func TestPersonalizeModifiers(t *testing.T) {
	p := NewPersonalizer("")

	out := p.Personalize("{{firstName:upper}} {{lastName:lower}} {{company:capitalize}}", testContact(), 0)

	assert.Equal(t, "JORDAN lee Acme", out)
}

func TestPersonalizeDateTokens(t *testing.T) {
	p := NewPersonalizer("")

	out := p.Personalize("{{year}} {{dayOfWeek}}", testContact(), 0)

	now := time.Now()
	assert.Equal(t, fmt.Sprintf("%s %s", now.Format("2006"), now.Format("Monday")), out)
}

func TestPersonalizeUnsubscribeLink(t *testing.T) {
	p := NewPersonalizer("https://mail.example.com")

	out := p.Personalize("Bye: {{unsubscribeLink}}", testContact(), 42)

	assert.Equal(t, "Bye: https://mail.example.com/unsubscribe/42/7?email=jordan%40acme.io", out)
}

func TestPersonalizeFullNameFallsBackToLocalPart(t *testing.T) {
	p := NewPersonalizer("")
	contact := &models.Contact{Email: "sam.rivera@corp.net"}

	out := p.Personalize("{{fullName}} at {{emailDomain}}", contact, 0)

	assert.Equal(t, "sam.rivera at corp.net", out)
}

func TestPersonalizeIdempotent(t *testing.T) {
	p := NewPersonalizer("https://mail.example.com")
	tpl := `Hi {{firstName | "Friend"}}, {{#if company}}{{company:upper}}{{/if}} {{unknownToken}} {{year}}`

	once := p.Personalize(tpl, testContact(), 3)
	twice := p.Personalize(once, testContact(), 3)

	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "{{")
}

func TestPersonalizeRandomTokensIndependent(t *testing.T) {
	p := NewPersonalizer("")

	out := p.Personalize("{{uniqueCode}}-{{uniqueCode}}", testContact(), 0)

	parts := strings.SplitN(out, "-", 2)
	assert.Len(t, parts, 2)
	assert.NotEqual(t, parts[0], parts[1])
	assert.Len(t, parts[0], 8)
}
