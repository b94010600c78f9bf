package utils

import (
	"context"
	"errors"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
)

// VerifyStatus is the final classification of an address
type VerifyStatus string

const (
	VerifyStatusValid   VerifyStatus = "valid"
	VerifyStatusInvalid VerifyStatus = "invalid"
	VerifyStatusRisky   VerifyStatus = "risky"
	VerifyStatusUnknown VerifyStatus = "unknown"
	VerifyStatusError   VerifyStatus = "error"
)

// CheckResult is the outcome of one pipeline check
type CheckResult string

const (
	CheckPass    CheckResult = "pass"
	CheckFail    CheckResult = "fail"
	CheckUnknown CheckResult = "unknown"
	CheckSkipped CheckResult = "skipped"
)

// VerificationResult is the scored verdict produced by the pipeline
type VerificationResult struct {
	Email   string                 `json:"email"`
	Status  VerifyStatus           `json:"status"`
	Score   int                    `json:"score"`
	Checks  map[string]CheckResult `json:"checks"`
	Details VerificationDetails    `json:"details"`
}

// VerificationDetails carries supporting evidence for the verdict
type VerificationDetails struct {
	Method       string `json:"method"`
	PrimaryMX    string `json:"primary_mx,omitempty"`
	SMTPCode     int    `json:"smtp_code,omitempty"`
	SMTPResponse string `json:"smtp_response,omitempty"`
	IsCatchAll   bool   `json:"is_catch_all"`
	IsDisposable bool   `json:"is_disposable"`
	IsRoleBased  bool   `json:"is_role_based"`
}

// VerifyOptions enumerates the recognized verification options
type VerifyOptions struct {
	SkipSMTPCheck bool `json:"skip_smtp_check"`
	CheckCatchAll bool `json:"check_catch_all"`
}

// Score contributions and thresholds. Disposable and no-MX are hard
// fails; SMTP-invalid is a hard fail. Nothing else alone may flip a
// high-scoring address to invalid.
const (
	scoreSyntax        = 20
	scoreNotDisposable = 15
	scoreDisposable    = 25 // fixed final score for disposable domains
	scoreNotRoleBased  = 10
	penaltyRoleBased   = 10
	scoreMXFound       = 20
	penaltyCatchAll    = 15
	scoreSMTPValid     = 25
	scoreSMTPTemporary = 10
	scoreSMTPUnknown   = 5
	scoreSMTPSkipped   = 5
	penaltySMTPInvalid = 30

	thresholdValid = 80
	thresholdRisky = 50

	maxEmailLength = 254
	maxLocalLength = 64
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Role-based local-part prefixes
	rolePrefixes = []string{
		"admin", "administrator", "abuse", "billing", "contact", "help",
		"hello", "info", "mail", "marketing", "noreply", "no-reply",
		"office", "postmaster", "sales", "support", "team", "webmaster",
	}
)

// Verifier runs the ordered verification pipeline: syntax, disposable
// domain, role-based local-part, MX resolution, then an optional live
// SMTP probe via the Prober.
type Verifier struct {
	Prober *Prober

	// lookupMX is swapped in tests
	lookupMX func(domain string) ([]*net.MX, error)

	// Domain to MX cache
	mxCache struct {
		sync.RWMutex
		m map[string][]*net.MX
	}

	// Domain to catch-all cache, shared across a bulk run
	catchAllCache struct {
		sync.RWMutex
		m map[string]bool
	}
}

func NewVerifier(prober *Prober) *Verifier {
	v := &Verifier{
		Prober:   prober,
		lookupMX: lookupMXWithTimeout,
	}
	v.mxCache.m = make(map[string][]*net.MX)
	v.catchAllCache.m = make(map[string]bool)
	return v
}

// Verify runs the full pipeline for a single address.
func (v *Verifier) Verify(email string, opts VerifyOptions) *VerificationResult {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:  email,
		Status: VerifyStatusUnknown,
		Checks: map[string]CheckResult{
			"syntax":     CheckSkipped,
			"disposable": CheckSkipped,
			"roleBased":  CheckSkipped,
			"mxRecords":  CheckSkipped,
			"catchAll":   CheckSkipped,
			"smtp":       CheckSkipped,
		},
	}

	// 1. Syntax
	if !validSyntax(email) {
		result.Checks["syntax"] = CheckFail
		result.Status = VerifyStatusInvalid
		result.Details.Method = "syntax"
		return result
	}
	result.Checks["syntax"] = CheckPass
	result.Score += scoreSyntax

	parts := strings.SplitN(email, "@", 2)
	localPart, domain := parts[0], parts[1]

	// 2. Disposable domain: hard fail with a fixed score
	if disposableDomains[domain] {
		result.Checks["disposable"] = CheckFail
		result.Details.IsDisposable = true
		result.Status = VerifyStatusRisky
		result.Score = scoreDisposable
		result.Details.Method = "disposable"
		return result
	}
	result.Checks["disposable"] = CheckPass
	result.Score += scoreNotDisposable

	// 3. Role-based local-part: penalized, not fatal
	if isRoleBased(localPart) {
		result.Checks["roleBased"] = CheckFail
		result.Details.IsRoleBased = true
		result.Score -= penaltyRoleBased
	} else {
		result.Checks["roleBased"] = CheckPass
		result.Score += scoreNotRoleBased
	}

	// 4. MX resolution. A resolver fault is not proof the domain lacks
	// MX records, so only a definitive not-found verdict marks the
	// address invalid.
	mxRecords, err := v.getMXRecords(domain)
	if err != nil && !isDNSNotFound(err) {
		result.Checks["mxRecords"] = CheckUnknown
		result.Status = VerifyStatusError
		result.Details.Method = "mx"
		return result
	}
	if err != nil || len(mxRecords) == 0 {
		result.Checks["mxRecords"] = CheckFail
		result.Status = VerifyStatusInvalid
		result.Details.Method = "mx"
		return result
	}
	result.Checks["mxRecords"] = CheckPass
	result.Score += scoreMXFound
	result.Details.PrimaryMX = strings.TrimSuffix(mxRecords[0].Host, ".")

	// 5. Live SMTP probe
	if !opts.SkipSMTPCheck && v.Prober != nil {
		if opts.CheckCatchAll {
			isCatchAll := v.cachedCatchAll(domain, result.Details.PrimaryMX)
			result.Details.IsCatchAll = isCatchAll
			if isCatchAll {
				result.Checks["catchAll"] = CheckFail
				result.Score -= penaltyCatchAll
			} else {
				result.Checks["catchAll"] = CheckPass
			}
		}

		probe := v.Prober.ProbeMailbox(email, result.Details.PrimaryMX)
		result.Details.Method = "smtp"
		result.Details.SMTPCode = probe.SMTPCode
		result.Details.SMTPResponse = probe.SMTPResponse

		switch probe.Status {
		case ProbeStatusValid:
			result.Checks["smtp"] = CheckPass
			result.Score += scoreSMTPValid
		case ProbeStatusTemporary:
			result.Checks["smtp"] = CheckUnknown
			result.Score += scoreSMTPTemporary
		case ProbeStatusInvalid:
			result.Checks["smtp"] = CheckFail
			result.Score -= penaltySMTPInvalid
			if result.Score < 0 {
				result.Score = 0
			}
			result.Status = VerifyStatusInvalid
			return result
		case ProbeStatusError, ProbeStatusTimeout:
			// The network failed, not the mailbox; treat as skipped
			result.Checks["smtp"] = CheckSkipped
			result.Score += scoreSMTPSkipped
		default:
			result.Checks["smtp"] = CheckUnknown
			result.Score += scoreSMTPUnknown
		}
	} else {
		result.Details.Method = "dns"
		result.Score += scoreSMTPSkipped
	}

	result.Status = classify(result)
	return result
}

// classify applies the final thresholds. Catch-all and role-based
// addresses are never upgraded to valid.
func classify(r *VerificationResult) VerifyStatus {
	if r.Details.IsCatchAll {
		return VerifyStatusRisky
	}
	if r.Details.IsRoleBased {
		if r.Score >= thresholdRisky {
			return VerifyStatusRisky
		}
		return VerifyStatusInvalid
	}
	if r.Score >= thresholdValid {
		return VerifyStatusValid
	}
	if r.Score >= thresholdRisky {
		return VerifyStatusRisky
	}
	return VerifyStatusInvalid
}

func validSyntax(email string) bool {
	if len(email) > maxEmailLength {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at > maxLocalLength {
		return false
	}
	if !emailRegex.MatchString(email) {
		return false
	}
	return checkmail.ValidateFormat(email) == nil
}

func isRoleBased(localPart string) bool {
	for _, prefix := range rolePrefixes {
		if strings.HasPrefix(localPart, prefix) {
			return true
		}
	}
	return false
}

// getMXRecords resolves and caches MX records, sorted so the
// highest-priority (lowest preference) host comes first.
func (v *Verifier) getMXRecords(domain string) ([]*net.MX, error) {
	v.mxCache.RLock()
	if records, ok := v.mxCache.m[domain]; ok {
		v.mxCache.RUnlock()
		return records, nil
	}
	v.mxCache.RUnlock()

	records, err := v.lookupMX(domain)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	v.mxCache.Lock()
	v.mxCache.m[domain] = records
	v.mxCache.Unlock()

	return records, nil
}

// cachedCatchAll computes catch-all status once per domain and reuses it
// for every later address at the same domain.
func (v *Verifier) cachedCatchAll(domain, mxHost string) bool {
	v.catchAllCache.RLock()
	if known, ok := v.catchAllCache.m[domain]; ok {
		v.catchAllCache.RUnlock()
		return known
	}
	v.catchAllCache.RUnlock()

	isCatchAll := v.Prober.DetectCatchAll(domain, mxHost)

	v.catchAllCache.Lock()
	v.catchAllCache.m[domain] = isCatchAll
	v.catchAllCache.Unlock()

	return isCatchAll
}

func isDNSNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func lookupMXWithTimeout(domain string) ([]*net.MX, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	return resolver.LookupMX(ctx, domain)
}
