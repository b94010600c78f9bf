package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailblast/models"
)

// Store wraps the database behind the operations the engines and
// controllers need. The worker package depends on narrow interfaces
// satisfied by this type so it can be tested without a database.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for controllers that run ad-hoc
// queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ---------- Campaigns ----------

func (s *Store) GetCampaign(id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.First(&campaign, id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *Store) UpdateCampaign(campaign *models.Campaign) error {
	return s.db.Save(campaign).Error
}

// GetCampaignContacts resolves the campaign's audience: active contacts
// in the target list, narrowed by tag when a tag filter is set.
func (s *Store) GetCampaignContacts(campaign *models.Campaign) ([]models.Contact, error) {
	query := s.db.Preload("CustomFields").
		Where("status = ?", models.ContactStatusActive)

	if campaign.ContactListID != nil {
		query = query.Where("contact_list_id = ?", *campaign.ContactListID)
	}
	if campaign.TagFilter != "" {
		query = query.Where(
			"id IN (?)",
			s.db.Model(&models.ContactTag{}).Select("contact_id").Where("tag = ?", campaign.TagFilter),
		)
	}

	var contacts []models.Contact
	if err := query.Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *Store) AddCampaignLog(log *models.CampaignLog) error {
	return s.db.Create(log).Error
}

func (s *Store) GetCampaignLogByTracking(trackingID string) (*models.CampaignLog, error) {
	var log models.CampaignLog
	if err := s.db.Where("tracking_id = ?", trackingID).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (s *Store) UpdateCampaignLog(log *models.CampaignLog) error {
	return s.db.Save(log).Error
}

// ---------- Suppression ----------

func (s *Store) IsBlacklisted(email string) (bool, error) {
	var count int64
	err := s.db.Model(&models.BlacklistEntry{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (s *Store) IsUnsubscribed(email string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Unsubscribe{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// AddToBlacklist is idempotent: re-adding an already suppressed address
// is not an error.
func (s *Store) AddToBlacklist(email, source, reason string) error {
	entry := models.BlacklistEntry{Email: email, Source: source, Reason: reason}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&entry).Error
}

func (s *Store) AddUnsubscribe(email string, campaignID *uint, reason string) error {
	entry := models.Unsubscribe{Email: email, CampaignID: campaignID, Reason: reason}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// ---------- Contacts ----------

func (s *Store) UpdateContact(contact *models.Contact) error {
	return s.db.Save(contact).Error
}

func (s *Store) GetContactByEmail(email string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.Where("email = ?", email).First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// MarkContactBounced flips the contact's lifecycle status so future
// campaigns skip the address. Unknown addresses are ignored.
func (s *Store) MarkContactBounced(email string) error {
	err := s.db.Model(&models.Contact{}).
		Where("email = ?", email).
		Update("status", models.ContactStatusBounced).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// ---------- SMTP accounts ----------

func (s *Store) GetActiveSMTPAccounts() ([]*models.SMTPAccount, error) {
	var accounts []*models.SMTPAccount
	err := s.db.Where("is_active = ?", true).
		Order("priority DESC, id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (s *Store) SaveSMTPAccount(acct *models.SMTPAccount) error {
	return s.db.Save(acct).Error
}

// IncrementSMTPSentCount persists the account's in-memory send counters
// after the rotator has applied the daily rollover and increment.
func (s *Store) IncrementSMTPSentCount(acct *models.SMTPAccount) error {
	return s.db.Model(acct).
		Select("sent_today", "total_sent", "last_reset_at").
		Updates(map[string]interface{}{
			"sent_today":    acct.SentToday,
			"total_sent":    acct.TotalSent,
			"last_reset_at": acct.LastResetAt,
		}).Error
}

// ---------- Tracking ----------

func (s *Store) AddTrackingEvent(event *models.TrackingEvent) error {
	return s.db.Create(event).Error
}

func (s *Store) GetTrackingEvents(campaignID uint, eventType string, limit int) ([]models.TrackingEvent, error) {
	query := s.db.Where("campaign_id = ?", campaignID).Order("created_at DESC")
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var events []models.TrackingEvent
	err := query.Find(&events).Error
	return events, err
}

// ---------- Verification jobs ----------

func (s *Store) CreateVerificationJob(job *models.VerificationJob) error {
	return s.db.Create(job).Error
}

func (s *Store) UpdateVerificationJob(job *models.VerificationJob) error {
	return s.db.Save(job).Error
}

func (s *Store) AddVerificationRecord(record *models.VerificationRecord) error {
	return s.db.Create(record).Error
}

func (s *Store) GetVerificationJob(id uint) (*models.VerificationJob, error) {
	var job models.VerificationJob
	if err := s.db.Preload("Records").First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Touch updates only the given columns on a campaign, used by the
// dispatcher for counter bumps without racing full-row saves.
func (s *Store) TouchCampaign(id uint, columns map[string]interface{}) error {
	columns["updated_at"] = time.Now()
	return s.db.Model(&models.Campaign{}).Where("id = ?", id).Updates(columns).Error
}
