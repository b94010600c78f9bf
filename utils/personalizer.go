package utils

import (
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"mailblast/models"
)

// Personalizer substitutes template tokens with per-recipient values.
// Evaluation is a fixed, ordered sequence of passes because later passes
// act on text produced by earlier ones.
type Personalizer struct {
	BaseURL string
}

func NewPersonalizer(baseURL string) *Personalizer {
	return &Personalizer{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

var (
	fieldTokenRegex    = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	fallbackTokenRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\|\s*"([^"]*)"\s*\}\}`)
	ifBlockRegex       = regexp.MustCompile(`(?s)\{\{#if\s+([a-zA-Z0-9_]+)\}\}(.*?)\{\{/if\}\}`)
	unlessBlockRegex   = regexp.MustCompile(`(?s)\{\{#unless\s+([a-zA-Z0-9_]+)\}\}(.*?)\{\{/unless\}\}`)
	modifierTokenRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+):(upper|lower|capitalize)\s*\}\}`)
	elseMarker         = "{{else}}"
)

// Personalize resolves all tokens in template for the given contact.
// Unknown fields resolve to empty string; a malformed token never aborts
// the send. No token syntax survives a pass, so applying the function to
// its own output is a no-op.
func (p *Personalizer) Personalize(template string, contact *models.Contact, campaignID uint) string {
	fields := contactFields(contact)
	out := template

	// 1. Literal field tokens. Only known fields are consumed here;
	// unrecognized simple tokens are left for the later passes and the
	// final cleanup.
	out = fieldTokenRegex.ReplaceAllStringFunc(out, func(token string) string {
		m := fieldTokenRegex.FindStringSubmatch(token)
		if value, ok := fields[strings.ToLower(m[1])]; ok {
			return value
		}
		return token
	})

	// 2. Date/time tokens resolved at send time, and per-recipient
	// randoms; every occurrence of a random token gets an independent
	// value.
	now := time.Now()
	out = fieldTokenRegex.ReplaceAllStringFunc(out, func(token string) string {
		m := fieldTokenRegex.FindStringSubmatch(token)
		switch m[1] {
		case "date":
			return now.Format("January 2, 2006")
		case "time":
			return now.Format("3:04 PM")
		case "year":
			return now.Format("2006")
		case "month":
			return now.Format("January")
		case "day":
			return now.Format("2")
		case "dayOfWeek":
			return now.Format("Monday")
		case "randomNumber":
			return fmt.Sprintf("%d", 1000+rand.Intn(9000))
		case "uniqueCode":
			return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
		}
		return token
	})

	// 3. Fallback tokens: field value when non-blank, else the literal
	// default.
	out = fallbackTokenRegex.ReplaceAllStringFunc(out, func(token string) string {
		m := fallbackTokenRegex.FindStringSubmatch(token)
		if value, ok := fields[strings.ToLower(m[1])]; ok && strings.TrimSpace(value) != "" {
			return value
		}
		return m[2]
	})

	// 4. Block conditionals, evaluated on raw field truthiness.
	out = ifBlockRegex.ReplaceAllStringFunc(out, func(block string) string {
		m := ifBlockRegex.FindStringSubmatch(block)
		body := m[2]
		thenPart, elsePart := body, ""
		if idx := strings.Index(body, elseMarker); idx >= 0 {
			thenPart, elsePart = body[:idx], body[idx+len(elseMarker):]
		}
		if truthy(fields, m[1]) {
			return thenPart
		}
		return elsePart
	})
	out = unlessBlockRegex.ReplaceAllStringFunc(out, func(block string) string {
		m := unlessBlockRegex.FindStringSubmatch(block)
		if truthy(fields, m[1]) {
			return ""
		}
		return m[2]
	})

	// 5. Case modifiers.
	out = modifierTokenRegex.ReplaceAllStringFunc(out, func(token string) string {
		m := modifierTokenRegex.FindStringSubmatch(token)
		value := fields[strings.ToLower(m[1])]
		switch m[2] {
		case "upper":
			return strings.ToUpper(value)
		case "lower":
			return strings.ToLower(value)
		default:
			return capitalize(value)
		}
	})

	// 6. Unsubscribe link, only when a campaign is in play.
	if campaignID > 0 {
		link := fmt.Sprintf("%s/unsubscribe/%d/%d?email=%s",
			p.BaseURL, campaignID, contact.ID, url.QueryEscape(contact.Email))
		out = strings.ReplaceAll(out, "{{unsubscribeLink}}", link)
	}

	// Unknown fields resolve to empty string rather than leaking token
	// syntax into the sent mail.
	out = fieldTokenRegex.ReplaceAllString(out, "")

	return out
}

// contactFields builds the case-insensitive lookup table for a contact,
// including custom fields and the computed fullName/emailDomain values.
func contactFields(contact *models.Contact) map[string]string {
	fields := map[string]string{
		"email":     contact.Email,
		"firstname": contact.FirstName,
		"lastname":  contact.LastName,
		"company":   contact.Company,
		"position":  contact.Position,
		"phone":     contact.Phone,
		"website":   contact.Website,
	}

	fullName := strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	if fullName == "" {
		// Fall back to the local-part of the address
		if at := strings.Index(contact.Email, "@"); at > 0 {
			fullName = contact.Email[:at]
		}
	}
	fields["fullname"] = fullName

	if at := strings.Index(contact.Email, "@"); at >= 0 {
		fields["emaildomain"] = contact.Email[at+1:]
	}

	for _, cf := range contact.CustomFields {
		fields[strings.ToLower(cf.Name)] = cf.Value
	}

	return fields
}

// truthy reports whether a field resolves to a non-empty, non-whitespace
// string.
func truthy(fields map[string]string, name string) bool {
	return strings.TrimSpace(fields[strings.ToLower(name)]) != ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
