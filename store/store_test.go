package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailblast/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return New(db), mock
}

func TestIsBlacklisted(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "blacklist_entries" WHERE email = \$1`).
		WithArgs("blocked@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	blocked, err := st.IsBlacklisted("blocked@example.com")
	require.NoError(t, err)
	assert.True(t, blocked)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "blacklist_entries" WHERE email = \$1`).
		WithArgs("clean@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	blocked, err = st.IsBlacklisted("clean@example.com")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestAddToBlacklistIsIdempotent(t *testing.T) {
	st, mock := newMockStore(t)

	// conflicting insert returns no row; that must not surface as an error
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "blacklist_entries" .* ON CONFLICT \("email"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := st.AddToBlacklist("dup@example.com", models.BlacklistSourceAuto, "Hard bounce")
	assert.NoError(t, err)
}

func TestGetCampaignLogByTracking(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "campaign_id", "contact_id", "email", "tracking_id", "variant", "status"}).
		AddRow(3, 1, 9, "user@example.com", "trk-1", "A", models.LogStatusSent)
	mock.ExpectQuery(`SELECT \* FROM "campaign_logs" WHERE tracking_id = \$1`).
		WithArgs("trk-1", 1).
		WillReturnRows(rows)

	log, err := st.GetCampaignLogByTracking("trk-1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), log.CampaignID)
	assert.Equal(t, "user@example.com", log.Email)

	mock.ExpectQuery(`SELECT \* FROM "campaign_logs" WHERE tracking_id = \$1`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = st.GetCampaignLogByTracking("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestIncrementSMTPSentCountWritesCounterColumns(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now()
	acct := &models.SMTPAccount{SentToday: 12, TotalSent: 340, LastResetAt: &now}
	acct.ID = 5

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "smtp_accounts" SET "last_reset_at"=\$1,"sent_today"=\$2,"total_sent"=\$3 WHERE`).
		WithArgs(sqlmock.AnyArg(), 12, 340, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, st.IncrementSMTPSentCount(acct))
}

func TestMarkContactBounced(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "contacts" SET "status"=\$1,"updated_at"=\$2 WHERE email = \$3`).
		WithArgs(models.ContactStatusBounced, sqlmock.AnyArg(), "gone@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, st.MarkContactBounced("gone@example.com"))
}

func TestGetActiveSMTPAccountsOrdersByPriority(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "is_active", "priority"}).
		AddRow(2, "primary", true, 10).
		AddRow(1, "backup", true, 1)
	mock.ExpectQuery(`SELECT \* FROM "smtp_accounts" WHERE is_active = \$1 .* ORDER BY priority DESC, id ASC`).
		WithArgs(true).
		WillReturnRows(rows)

	accounts, err := st.GetActiveSMTPAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "primary", accounts[0].Name)
}
