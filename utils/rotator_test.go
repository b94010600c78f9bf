package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailblast/models"
)

func testAccounts(limits ...int) []*models.SMTPAccount {
	now := time.Now()
	accounts := make([]*models.SMTPAccount, len(limits))
	for i, limit := range limits {
		accounts[i] = &models.SMTPAccount{
			Name:        string(rune('A' + i)),
			IsActive:    true,
			DailyLimit:  limit,
			LastResetAt: &now,
		}
		accounts[i].ID = uint(i + 1)
	}
	return accounts
}

func TestRotatorRoundRobin(t *testing.T) {
	r := NewAccountRotator(testAccounts(10, 10, 10))

	var order []uint
	for i := 0; i < 6; i++ {
		acct, err := r.NextAccount()
		require.NoError(t, err)
		order = append(order, acct.ID)
		r.RecordSend(acct)
	}
	assert.Equal(t, []uint{1, 2, 3, 1, 2, 3}, order)
}

func TestRotatorExhaustsDailyLimits(t *testing.T) {
	r := NewAccountRotator(testAccounts(1, 2))

	for i := 0; i < 3; i++ {
		acct, err := r.NextAccount()
		require.NoError(t, err)
		r.RecordSend(acct)
	}

	_, err := r.NextAccount()
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestRotatorSkipsInactiveAccounts(t *testing.T) {
	accounts := testAccounts(10, 10)
	accounts[0].IsActive = false
	r := NewAccountRotator(accounts)

	for i := 0; i < 3; i++ {
		acct, err := r.NextAccount()
		require.NoError(t, err)
		assert.Equal(t, uint(2), acct.ID)
		r.RecordSend(acct)
	}
}

func TestRotatorEmpty(t *testing.T) {
	r := NewAccountRotator(nil)
	_, err := r.NextAccount()
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestRotatorLazyDailyRollover(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	acct := &models.SMTPAccount{
		IsActive:    true,
		DailyLimit:  5,
		SentToday:   5,
		LastResetAt: &yesterday,
	}
	acct.ID = 1
	r := NewAccountRotator([]*models.SMTPAccount{acct})

	// Exhausted yesterday, but the stored reset date is stale so the
	// counter rolls over on read
	got, err := r.NextAccount()
	require.NoError(t, err)
	assert.Equal(t, uint(1), got.ID)
	assert.Equal(t, 0, got.SentToday)
	assert.True(t, sameDay(*got.LastResetAt, time.Now()))
}

func TestRotatorNoRolloverSameDay(t *testing.T) {
	r := NewAccountRotator(testAccounts(2))

	acct, err := r.NextAccount()
	require.NoError(t, err)
	r.RecordSend(acct)
	r.RecordSend(acct)

	_, err = r.NextAccount()
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
	assert.Equal(t, 2, acct.SentToday)
}

func TestRotatorRemaining(t *testing.T) {
	r := NewAccountRotator(testAccounts(3, 2))
	assert.Equal(t, 5, r.Remaining())

	acct, _ := r.NextAccount()
	r.RecordSend(acct)
	assert.Equal(t, 4, r.Remaining())

	unlimited := testAccounts(3)
	unlimited[0].DailyLimit = 0
	r = NewAccountRotator(unlimited)
	assert.Equal(t, -1, r.Remaining())
}
