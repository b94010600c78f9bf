package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailblast/models"
	"mailblast/store"
	"mailblast/utils"
	"mailblast/worker"
)

type CampaignController struct {
	Store      *store.Store
	Dispatcher *worker.Dispatcher
	Logger     *logrus.Logger
}

func NewCampaignController(st *store.Store, dispatcher *worker.Dispatcher, logger *logrus.Logger) *CampaignController {
	return &CampaignController{
		Store:      st,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

type campaignInput struct {
	Name            string `json:"name" validate:"required,min=1,max=200"`
	Subject         string `json:"subject" validate:"required,min=1"`
	Body            string `json:"body"`
	ABTestEnabled   bool   `json:"ab_test_enabled"`
	SubjectB        string `json:"subject_b"`
	BodyB           string `json:"body_b"`
	ABSplitPercent  int    `json:"ab_split_percent" validate:"min=0,max=50"`
	ContactListID   *uint  `json:"contact_list_id"`
	TagFilter       string `json:"tag_filter"`
	BatchSize       int    `json:"batch_size" validate:"min=0,max=1000"`
	BatchDelaySecs  int    `json:"batch_delay_secs" validate:"min=0"`
	SendDelayMillis int    `json:"send_delay_millis" validate:"min=0"`
	TrackOpens      *bool  `json:"track_opens"`
	TrackClicks     *bool  `json:"track_clicks"`
}

// CreateCampaign creates a draft campaign
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input campaignInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	campaign := models.Campaign{
		Name:            input.Name,
		Subject:         input.Subject,
		Body:            input.Body,
		ABTestEnabled:   input.ABTestEnabled,
		SubjectB:        input.SubjectB,
		BodyB:           input.BodyB,
		ABSplitPercent:  input.ABSplitPercent,
		ContactListID:   input.ContactListID,
		TagFilter:       input.TagFilter,
		Status:          models.CampaignStatusDraft,
		TrackOpens:      true,
		TrackClicks:     true,
		BatchSize:       50,
		BatchDelaySecs:  60,
		SendDelayMillis: 2000,
	}
	if input.BatchSize > 0 {
		campaign.BatchSize = input.BatchSize
	}
	if input.BatchDelaySecs > 0 {
		campaign.BatchDelaySecs = input.BatchDelaySecs
	}
	if input.SendDelayMillis > 0 {
		campaign.SendDelayMillis = input.SendDelayMillis
	}
	if input.TrackOpens != nil {
		campaign.TrackOpens = *input.TrackOpens
	}
	if input.TrackClicks != nil {
		campaign.TrackClicks = *input.TrackClicks
	}

	if err := cc.Store.DB().Create(&campaign).Error; err != nil {
		cc.Logger.WithError(err).Error("failed to create campaign")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

// GetCampaigns returns all campaigns
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	var campaigns []models.Campaign
	if err := cc.Store.DB().Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(campaigns)
}

// GetCampaign returns a single campaign
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}
	return c.JSON(campaign)
}

// UpdateCampaign updates a draft campaign. Running campaigns cannot be
// edited mid-flight.
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}
	if campaign.Status == models.CampaignStatusRunning || campaign.Status == models.CampaignStatusPaused {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot edit a campaign while it is running",
		})
	}

	var input campaignInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	campaign.Name = input.Name
	campaign.Subject = input.Subject
	campaign.Body = input.Body
	campaign.ABTestEnabled = input.ABTestEnabled
	campaign.SubjectB = input.SubjectB
	campaign.BodyB = input.BodyB
	campaign.ABSplitPercent = input.ABSplitPercent
	campaign.ContactListID = input.ContactListID
	campaign.TagFilter = input.TagFilter
	if input.BatchSize > 0 {
		campaign.BatchSize = input.BatchSize
	}
	if input.BatchDelaySecs > 0 {
		campaign.BatchDelaySecs = input.BatchDelaySecs
	}
	if input.SendDelayMillis > 0 {
		campaign.SendDelayMillis = input.SendDelayMillis
	}
	if input.TrackOpens != nil {
		campaign.TrackOpens = *input.TrackOpens
	}
	if input.TrackClicks != nil {
		campaign.TrackClicks = *input.TrackClicks
	}

	if err := cc.Store.UpdateCampaign(campaign); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign updated successfully",
		"campaign": campaign,
	})
}

// DeleteCampaign removes a campaign that is not running
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}
	if campaign.Status == models.CampaignStatusRunning || campaign.Status == models.CampaignStatusPaused {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a campaign while it is running",
		})
	}

	if err := cc.Store.DB().Delete(campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Campaign deleted successfully",
	})
}

// StartCampaign hands the campaign to the dispatch engine
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}

	if err := cc.Dispatcher.StartCampaign(campaign.ID); err != nil {
		if errors.Is(err, worker.ErrCampaignActive) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Another campaign is already running",
			})
		}
		cc.Logger.WithError(err).WithField("campaign_id", campaign.ID).Error("failed to start campaign")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Campaign started successfully",
	})
}

// PauseCampaign suspends sending before the next recipient
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	return cc.control(c, cc.Dispatcher.Pause, "Campaign paused")
}

// ResumeCampaign lifts a pause
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	return cc.control(c, cc.Dispatcher.Resume, "Campaign resumed")
}

// StopCampaign halts the run without finishing the current batch
func (cc *CampaignController) StopCampaign(c *fiber.Ctx) error {
	return cc.control(c, cc.Dispatcher.Stop, "Campaign stopping")
}

func (cc *CampaignController) control(c *fiber.Ctx, action func(uint) error, message string) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}
	if err := action(campaign.ID); err != nil {
		if errors.Is(err, worker.ErrCampaignNotRunning) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Campaign is not running",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Campaign control failed",
		})
	}
	return c.JSON(fiber.Map{
		"message": message,
	})
}

// GetCampaignStats returns counters plus derived open/click rates
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}

	var uniqueOpens, uniqueClicks int64
	cc.Store.DB().Model(&models.CampaignLog{}).
		Where("campaign_id = ? AND opened_at IS NOT NULL", campaign.ID).
		Count(&uniqueOpens)
	cc.Store.DB().Model(&models.CampaignLog{}).
		Where("campaign_id = ? AND clicked_at IS NOT NULL", campaign.ID).
		Count(&uniqueClicks)

	openRate, clickRate := 0.0, 0.0
	if campaign.SentEmails > 0 {
		openRate = float64(uniqueOpens) / float64(campaign.SentEmails) * 100
		clickRate = float64(uniqueClicks) / float64(campaign.SentEmails) * 100
	}

	return c.JSON(fiber.Map{
		"status":        campaign.Status,
		"total_emails":  campaign.TotalEmails,
		"sent_emails":   campaign.SentEmails,
		"failed_emails": campaign.FailedEmails,
		"skipped":       campaign.SkippedEmails,
		"open_count":    campaign.OpenCount,
		"click_count":   campaign.ClickCount,
		"bounce_count":  campaign.BounceCount,
		"unique_opens":  uniqueOpens,
		"unique_clicks": uniqueClicks,
		"open_rate":     openRate,
		"click_rate":    clickRate,
		"started_at":    campaign.StartedAt,
		"completed_at":  campaign.CompletedAt,
	})
}

// GetCampaignLogs returns the append-only send audit trail
func (cc *CampaignController) GetCampaignLogs(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}

	var logs []models.CampaignLog
	if err := cc.Store.DB().Where("campaign_id = ?", campaign.ID).
		Order("id ASC").Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaign logs",
		})
	}
	return c.JSON(logs)
}

// GetCampaignEvents returns recorded open/click events, newest first,
// filterable by event type
func (cc *CampaignController) GetCampaignEvents(c *fiber.Ctx) error {
	campaign, ok := cc.findCampaign(c)
	if !ok {
		return nil
	}

	limit := c.QueryInt("limit", 200)
	events, err := cc.Store.GetTrackingEvents(campaign.ID, c.Query("type"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tracking events",
		})
	}
	return c.JSON(events)
}

func (cc *CampaignController) findCampaign(c *fiber.Ctx) (*models.Campaign, bool) {
	id, err := c.ParamsInt("id")
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign id",
		})
		return nil, false
	}

	campaign, err := cc.Store.GetCampaign(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		} else {
			_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to fetch campaign",
			})
		}
		return nil, false
	}
	return campaign, true
}
