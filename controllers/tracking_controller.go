package controller

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailblast/models"
	"mailblast/store"
)

// transparentPixel is a 1x1 transparent GIF served for open tracking.
var transparentPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3B,
}

type TrackingController struct {
	Store  *store.Store
	Logger *logrus.Logger
}

func NewTrackingController(st *store.Store, logger *logrus.Logger) *TrackingController {
	return &TrackingController{
		Store:  st,
		Logger: logger,
	}
}

// TrackOpen serves the tracking pixel and records the open. The pixel is
// always returned, even when recording fails, so broken tracking never
// breaks mail rendering.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	campaignID, contactID, trackingID, ok := parseTrackingParams(c)
	if ok {
		tc.recordEvent(campaignID, contactID, trackingID, "open", "", c)
	}

	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	return c.Send(transparentPixel)
}

// TrackClick records the click and redirects to the original URL.
// Undecodable or non-HTTP targets get a 400 instead of an open redirect.
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	campaignID, contactID, trackingID, ok := parseTrackingParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid tracking reference",
		})
	}

	target, err := url.QueryUnescape(c.Query("url"))
	if err != nil || target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid target URL",
		})
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid target URL",
		})
	}

	tc.recordEvent(campaignID, contactID, trackingID, "click", target, c)

	return c.Redirect(target, fiber.StatusFound)
}

// Unsubscribe records the opt-out, blacklists the address and renders a
// confirmation page. Registered for both GET (mail client link) and POST
// (one-click header).
func (tc *TrackingController) Unsubscribe(c *fiber.Ctx) error {
	campaignID, err := c.ParamsInt("campaignId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid unsubscribe link")
	}
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" || !strings.Contains(email, "@") {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid unsubscribe link")
	}

	cid := uint(campaignID)
	if err := tc.Store.AddUnsubscribe(email, &cid, "Recipient opt-out"); err != nil {
		tc.Logger.WithError(err).WithField("email", email).Error("failed to record unsubscribe")
		return c.Status(fiber.StatusInternalServerError).SendString("Something went wrong, please try again")
	}
	if err := tc.Store.AddToBlacklist(email, models.BlacklistSourceManual, "Unsubscribed"); err != nil {
		tc.Logger.WithError(err).WithField("email", email).Error("failed to blacklist unsubscribed address")
	}

	if contact, err := tc.Store.GetContactByEmail(email); err == nil {
		contact.Status = models.ContactStatusInactive
		if err := tc.Store.UpdateContact(contact); err != nil {
			tc.Logger.WithError(err).Warn("failed to deactivate unsubscribed contact")
		}
	}

	tc.Logger.WithFields(logrus.Fields{
		"email":       email,
		"campaign_id": campaignID,
	}).Info("recipient unsubscribed")

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(fmt.Sprintf(unsubscribePage, email))
}

const unsubscribePage = `<!DOCTYPE html>
<html>
<head><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
<h2>You have been unsubscribed</h2>
<p>%s will no longer receive emails from us.</p>
</body>
</html>`

// recordEvent writes the tracking event and enriches the campaign log
// entry plus the denormalized counters.
func (tc *TrackingController) recordEvent(campaignID, contactID uint, trackingID, eventType, linkURL string, c *fiber.Ctx) {
	logEntry, err := tc.Store.GetCampaignLogByTracking(trackingID)
	if err != nil {
		tc.Logger.WithField("tracking_id", trackingID).Debug("tracking reference not found")
		return
	}
	if logEntry.CampaignID != campaignID || logEntry.ContactID != contactID {
		tc.Logger.WithField("tracking_id", trackingID).Warn("tracking reference mismatch, ignoring event")
		return
	}

	event := models.TrackingEvent{
		CampaignID: campaignID,
		ContactID:  &contactID,
		EventType:  eventType,
		LinkURL:    linkURL,
		UserAgent:  c.Get(fiber.HeaderUserAgent),
		IPAddress:  c.IP(),
	}
	if err := tc.Store.AddTrackingEvent(&event); err != nil {
		tc.Logger.WithError(err).Error("failed to record tracking event")
		return
	}

	now := time.Now()
	firstOfKind := false
	switch eventType {
	case "open":
		if logEntry.OpenedAt == nil {
			logEntry.OpenedAt = &now
			firstOfKind = true
		}
	case "click":
		if logEntry.ClickedAt == nil {
			logEntry.ClickedAt = &now
			firstOfKind = true
		}
		// a click implies the message was opened
		if logEntry.OpenedAt == nil {
			logEntry.OpenedAt = &now
		}
	}
	if err := tc.Store.UpdateCampaignLog(logEntry); err != nil {
		tc.Logger.WithError(err).Warn("failed to enrich campaign log")
	}

	column := "open_count"
	if eventType == "click" {
		column = "click_count"
	}
	if firstOfKind {
		if err := tc.Store.TouchCampaign(campaignID, map[string]interface{}{
			column: gorm.Expr(column+" + ?", 1),
		}); err != nil {
			tc.Logger.WithError(err).Warn("failed to bump campaign counter")
		}
	}

	tc.bumpContact(contactID, eventType, now)
}

// bumpContact updates the contact's engagement counters. Only the
// tracking path writes these fields.
func (tc *TrackingController) bumpContact(contactID uint, eventType string, at time.Time) {
	updates := map[string]interface{}{}
	switch eventType {
	case "open":
		updates["open_count"] = gorm.Expr("open_count + ?", 1)
		updates["last_opened_at"] = at
	case "click":
		updates["click_count"] = gorm.Expr("click_count + ?", 1)
		updates["last_click_at"] = at
	}
	if err := tc.Store.DB().Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(updates).Error; err != nil {
		tc.Logger.WithError(err).Warn("failed to bump contact engagement counters")
	}
}

func parseTrackingParams(c *fiber.Ctx) (uint, uint, string, bool) {
	campaignID, err := c.ParamsInt("campaignId")
	if err != nil || campaignID <= 0 {
		return 0, 0, "", false
	}
	contactID, err := c.ParamsInt("contactId")
	if err != nil || contactID <= 0 {
		return 0, 0, "", false
	}
	trackingID := c.Params("trackingId")
	if trackingID == "" {
		return 0, 0, "", false
	}
	return uint(campaignID), uint(contactID), trackingID, true
}
