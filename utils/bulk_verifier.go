package utils

import (
	"context"
	"time"
)

// BulkProgress is emitted after every verified address
type BulkProgress struct {
	Current int          `json:"current"`
	Total   int          `json:"total"`
	Email   string       `json:"email"`
	Status  VerifyStatus `json:"status"`
}

// BulkSummary tallies counts per status across a batch
type BulkSummary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Risky   int `json:"risky"`
	Unknown int `json:"unknown"`
	Errors  int `json:"errors"`
}

// Pauses between consecutive verifications. Probing a mail server for
// many addresses in a burst reads as abuse, so the SMTP pause is a
// politeness contract, not a tunable.
const (
	bulkDelaySMTP = 2 * time.Second
	bulkDelayDNS  = 250 * time.Millisecond
)

// VerifyBulk verifies addresses one at a time, in order. Iteration is
// deliberately sequential to respect per-connection rate limits on mail
// servers; the per-domain catch-all cache on the Verifier spares repeat
// probes for addresses sharing a domain.
func (v *Verifier) VerifyBulk(ctx context.Context, emails []string, opts VerifyOptions, onProgress func(BulkProgress)) ([]*VerificationResult, BulkSummary) {
	results := make([]*VerificationResult, 0, len(emails))
	summary := BulkSummary{Total: len(emails)}

	delay := bulkDelayDNS
	if !opts.SkipSMTPCheck {
		delay = bulkDelaySMTP
	}

	for i, email := range emails {
		if ctx.Err() != nil {
			break
		}

		result := v.Verify(email, opts)
		results = append(results, result)

		switch result.Status {
		case VerifyStatusValid:
			summary.Valid++
		case VerifyStatusInvalid:
			summary.Invalid++
		case VerifyStatusRisky:
			summary.Risky++
		case VerifyStatusError:
			summary.Errors++
		default:
			summary.Unknown++
		}

		if onProgress != nil {
			onProgress(BulkProgress{
				Current: i + 1,
				Total:   len(emails),
				Email:   result.Email,
				Status:  result.Status,
			})
		}

		if i < len(emails)-1 {
			select {
			case <-ctx.Done():
				return results, summary
			case <-time.After(delay):
			}
		}
	}

	return results, summary
}
