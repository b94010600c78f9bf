package utils

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestVerifier wires a verifier whose DNS answers are faked and whose
// SMTP probes land on the scripted local server.
func newTestVerifier(t *testing.T, rcptReply string) *Verifier {
	t.Helper()
	addr := scriptedSMTPServer(t, rcptReply)

	prober := newTestProber()
	prober.dial = func(string, time.Duration) (net.Conn, error) {
		return net.Dial("tcp", addr)
	}

	v := NewVerifier(prober)
	v.lookupMX = func(domain string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx.test.", Pref: 10}}, nil
	}
	return v
}

func TestVerifyInvalidSyntaxShortCircuits(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(string) ([]*net.MX, error) {
		t.Fatal("syntax failure must not trigger DNS")
		return nil, nil
	}

	for _, email := range []string{"", "plainstring", "missing@tld", "@nodomain.com", "user@@double.com"} {
		result := v.Verify(email, VerifyOptions{})
		assert.Equal(t, VerifyStatusInvalid, result.Status, email)
		assert.Equal(t, CheckFail, result.Checks["syntax"], email)
		assert.Equal(t, 0, result.Score, email)
	}
}

func TestVerifyDisposableDomain(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(string) ([]*net.MX, error) {
		t.Fatal("disposable failure must not trigger DNS")
		return nil, nil
	}

	result := v.Verify("user@tempmail.com", VerifyOptions{})

	assert.Equal(t, VerifyStatusRisky, result.Status)
	assert.Equal(t, 25, result.Score)
	assert.True(t, result.Details.IsDisposable)
	assert.Equal(t, CheckFail, result.Checks["disposable"])
}

func TestVerifyNoMXRecords(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(domain string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
	}

	result := v.Verify("alice@nomx-domain.com", VerifyOptions{})

	assert.Equal(t, VerifyStatusInvalid, result.Status)
	assert.Equal(t, CheckFail, result.Checks["mxRecords"])
	assert.Equal(t, "mx", result.Details.Method)
}

func TestVerifyResolverFaultIsErrorNotInvalid(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(domain string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "i/o timeout", Name: domain, IsTimeout: true, IsTemporary: true}
	}

	result := v.Verify("alice@slow-dns.com", VerifyOptions{})

	assert.Equal(t, VerifyStatusError, result.Status)
	assert.Equal(t, CheckUnknown, result.Checks["mxRecords"])
	assert.Equal(t, "mx", result.Details.Method)
}

func TestVerifyDeliverableMailbox(t *testing.T) {
	v := newTestVerifier(t, "250 OK")

	result := v.Verify("alice@example.com", VerifyOptions{})

	// syntax 20 + not disposable 15 + not role 10 + MX 20 + SMTP 25
	assert.Equal(t, 90, result.Score)
	assert.Equal(t, VerifyStatusValid, result.Status)
	assert.Equal(t, CheckPass, result.Checks["smtp"])
	assert.Equal(t, "mx.test", result.Details.PrimaryMX)
}

func TestVerifySMTPRejectionIsInvalid(t *testing.T) {
	v := newTestVerifier(t, "550 5.1.1 User unknown")

	result := v.Verify("nobody@example.com", VerifyOptions{})

	assert.Equal(t, VerifyStatusInvalid, result.Status)
	assert.Equal(t, CheckFail, result.Checks["smtp"])
	assert.Equal(t, 550, result.Details.SMTPCode)
}

func TestVerifyRoleBasedIsNeverValid(t *testing.T) {
	v := newTestVerifier(t, "250 OK")

	result := v.Verify("support@example.com", VerifyOptions{})

	// 20 + 15 - 10 + 20 + 25 = 70, downgraded for the role-based local part
	assert.Equal(t, 70, result.Score)
	assert.Equal(t, VerifyStatusRisky, result.Status)
	assert.True(t, result.Details.IsRoleBased)
}

func TestVerifyCatchAllDomainIsRisky(t *testing.T) {
	v := newTestVerifier(t, "250 OK")

	result := v.Verify("anything@example.com", VerifyOptions{CheckCatchAll: true})

	assert.True(t, result.Details.IsCatchAll)
	assert.Equal(t, VerifyStatusRisky, result.Status)
	assert.Equal(t, CheckFail, result.Checks["catchAll"])
	// 20 + 15 + 10 + 20 - 15 + 25 = 75
	assert.Equal(t, 75, result.Score)
}

func TestVerifySkipSMTPCapsAtRisky(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx.test.", Pref: 10}}, nil
	}

	result := v.Verify("alice@example.com", VerifyOptions{SkipSMTPCheck: true})

	// Without SMTP confirmation the best score is 70
	assert.Equal(t, 70, result.Score)
	assert.Equal(t, VerifyStatusRisky, result.Status)
	assert.Equal(t, "dns", result.Details.Method)
	assert.Equal(t, CheckSkipped, result.Checks["smtp"])
}

func TestVerifyUnreachableServerIsNotInvalid(t *testing.T) {
	prober := newTestProber()
	prober.dial = func(string, time.Duration) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	v := NewVerifier(prober)
	v.lookupMX = func(string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx.test.", Pref: 10}}, nil
	}

	result := v.Verify("alice@example.com", VerifyOptions{})

	// 20 + 15 + 10 + 20 + 5 = 70, network failure is not bounce evidence
	assert.Equal(t, 70, result.Score)
	assert.Equal(t, VerifyStatusRisky, result.Status)
	assert.Equal(t, CheckSkipped, result.Checks["smtp"])
}

func TestMXRecordsSortedAndCached(t *testing.T) {
	calls := 0
	v := NewVerifier(nil)
	v.lookupMX = func(string) ([]*net.MX, error) {
		calls++
		return []*net.MX{
			{Host: "backup.test.", Pref: 20},
			{Host: "primary.test.", Pref: 5},
		}, nil
	}

	r1 := v.Verify("a@example.com", VerifyOptions{SkipSMTPCheck: true})
	r2 := v.Verify("b@example.com", VerifyOptions{SkipSMTPCheck: true})

	assert.Equal(t, "primary.test", r1.Details.PrimaryMX)
	assert.Equal(t, "primary.test", r2.Details.PrimaryMX)
	assert.Equal(t, 1, calls)
}

func TestCatchAllCachedPerDomain(t *testing.T) {
	v := newTestVerifier(t, "250 OK")

	probes := 0
	baseDial := v.Prober.dial
	v.Prober.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		probes++
		return baseDial(addr, timeout)
	}

	v.Verify("a@example.com", VerifyOptions{CheckCatchAll: true})
	v.Verify("b@example.com", VerifyOptions{CheckCatchAll: true})

	// 1 catch-all probe + 2 mailbox probes; the second address reuses the
	// cached catch-all verdict
	assert.Equal(t, 3, probes)
}

func TestVerifyBulkSummaryAndOrder(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(domain string) ([]*net.MX, error) {
		switch domain {
		case "nomx.test":
			return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
		case "deaddns.test":
			return nil, &net.DNSError{Err: "i/o timeout", Name: domain, IsTimeout: true}
		}
		return []*net.MX{{Host: "mx.test.", Pref: 10}}, nil
	}

	emails := []string{"a@example.com", "bad-syntax", "user@tempmail.com", "c@nomx.test", "d@deaddns.test"}

	var seen []string
	results, summary := v.VerifyBulk(context.Background(), emails, VerifyOptions{SkipSMTPCheck: true}, func(p BulkProgress) {
		seen = append(seen, p.Email)
	})

	assert.Len(t, results, 5)
	assert.Equal(t, emails[0], seen[0])
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 0, summary.Valid)
	assert.Equal(t, 2, summary.Invalid) // bad syntax + no MX
	assert.Equal(t, 2, summary.Risky)   // DNS-only pass + disposable
	assert.Equal(t, 1, summary.Errors)  // resolver fault
}

func TestVerifyBulkCancellation(t *testing.T) {
	v := NewVerifier(nil)
	v.lookupMX = func(string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx.test.", Pref: 10}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	emails := []string{"a@example.com", "b@example.com", "c@example.com"}

	results, _ := v.VerifyBulk(ctx, emails, VerifyOptions{SkipSMTPCheck: true}, func(p BulkProgress) {
		if p.Current == 1 {
			cancel()
		}
	})

	assert.Len(t, results, 1)
}
