package utils

import (
	"errors"
	"sync"
	"time"

	"mailblast/models"
)

// ErrNoAccountAvailable is returned when every active account has
// exhausted its daily limit.
var ErrNoAccountAvailable = errors.New("no sending account available: all daily limits reached")

// AccountRotator hands out SMTP accounts round-robin, skipping accounts
// that hit their daily limit. Counters roll over lazily when the date
// changes rather than on a schedule, so restarting mid-day never resets
// quota already spent.
type AccountRotator struct {
	mu       sync.Mutex
	accounts []*models.SMTPAccount
	next     int

	// now is swapped in tests to control rollover
	now func() time.Time
}

func NewAccountRotator(accounts []*models.SMTPAccount) *AccountRotator {
	return &AccountRotator{
		accounts: accounts,
		now:      time.Now,
	}
}

// NextAccount returns the next account with remaining daily quota,
// advancing the round-robin cursor past it. ErrNoAccountAvailable is
// returned when all accounts are exhausted or inactive.
func (r *AccountRotator) NextAccount() (*models.SMTPAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.accounts) == 0 {
		return nil, ErrNoAccountAvailable
	}

	for i := 0; i < len(r.accounts); i++ {
		idx := (r.next + i) % len(r.accounts)
		acct := r.accounts[idx]
		if !acct.IsActive {
			continue
		}
		r.rolloverLocked(acct)
		if acct.DailyLimit > 0 && acct.SentToday >= acct.DailyLimit {
			continue
		}
		r.next = (idx + 1) % len(r.accounts)
		return acct, nil
	}
	return nil, ErrNoAccountAvailable
}

// RecordSend charges one send against the account's daily counter.
func (r *AccountRotator) RecordSend(acct *models.SMTPAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked(acct)
	acct.SentToday++
	acct.TotalSent++
}

// Remaining reports how many sends are left across all active accounts
// today. A zero DailyLimit means unlimited, reported as -1.
func (r *AccountRotator) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, acct := range r.accounts {
		if !acct.IsActive {
			continue
		}
		if acct.DailyLimit <= 0 {
			return -1
		}
		r.rolloverLocked(acct)
		if left := acct.DailyLimit - acct.SentToday; left > 0 {
			total += left
		}
	}
	return total
}

func (r *AccountRotator) rolloverLocked(acct *models.SMTPAccount) {
	today := r.now()
	if acct.LastResetAt == nil || !sameDay(*acct.LastResetAt, today) {
		acct.SentToday = 0
		acct.LastResetAt = &today
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
