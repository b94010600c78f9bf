package controller

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"mailblast/models"
	"mailblast/store"
	"mailblast/utils"
	"mailblast/worker"
)

type VerificationController struct {
	Store    *store.Store
	Verifier *utils.Verifier
	Logger   *logrus.Logger

	// notifier receives bulk verification progress for live streaming
	Notifier worker.ProgressNotifier
}

func NewVerificationController(st *store.Store, verifier *utils.Verifier, logger *logrus.Logger) *VerificationController {
	return &VerificationController{
		Store:    st,
		Verifier: verifier,
		Logger:   logger,
	}
}

// VerifyEmail handles single email verification
func (vc *VerificationController) VerifyEmail(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email address is required",
		})
	}

	opts := utils.VerifyOptions{
		SkipSMTPCheck: c.Query("skip_smtp") == "true",
		CheckCatchAll: c.Query("check_catch_all", "true") == "true",
	}

	result := vc.Verifier.Verify(email, opts)

	response := fiber.Map{"result": result}

	// WHOIS is best effort; a registry timeout never fails the request
	if at := strings.LastIndex(email, "@"); at > 0 && c.Query("whois") == "true" {
		if whoisInfo, err := whois.Whois(email[at+1:]); err == nil {
			response["whois"] = whoisInfo
		}
	}

	return c.JSON(response)
}

// BulkVerify starts a background verification job over the posted
// address list and returns its id for polling.
func (vc *VerificationController) BulkVerify(c *fiber.Ctx) error {
	var request struct {
		Name          string   `json:"name"`
		Emails        []string `json:"emails" validate:"required,min=1,max=50000"`
		SkipSMTPCheck bool     `json:"skip_smtp_check"`
		CheckCatchAll bool     `json:"check_catch_all"`
	}

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request format",
		})
	}
	if err := utils.ValidateStruct(request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	name := request.Name
	if name == "" {
		name = "Bulk verification " + time.Now().Format("2006-01-02")
	}

	job := models.VerificationJob{
		Name:       name,
		Status:     "processing",
		TotalCount: len(request.Emails),
	}
	if err := vc.Store.CreateVerificationJob(&job); err != nil {
		vc.Logger.WithError(err).Error("failed to create verification job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create verification job",
		})
	}

	opts := utils.VerifyOptions{
		SkipSMTPCheck: request.SkipSMTPCheck,
		CheckCatchAll: request.CheckCatchAll,
	}
	go vc.processBulkVerification(job.ID, request.Emails, opts)

	return c.JSON(fiber.Map{
		"message": "Verification started",
		"job_id":  job.ID,
	})
}

// GetVerificationJob returns a job with its per-address records.
func (vc *VerificationController) GetVerificationJob(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid job id",
		})
	}

	job, err := vc.Store.GetVerificationJob(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Verification job not found",
		})
	}
	return c.JSON(job)
}

func (vc *VerificationController) processBulkVerification(jobID uint, emails []string, opts utils.VerifyOptions) {
	started := time.Now()

	results, summary := vc.Verifier.VerifyBulk(context.Background(), emails, opts, func(p utils.BulkProgress) {
		if vc.Notifier != nil {
			vc.Notifier.Notify(worker.ProgressEvent{
				CampaignID:   jobID,
				Status:       "verifying",
				Total:        p.Total,
				Sent:         p.Current,
				CurrentEmail: p.Email,
			})
		}
	})

	for _, result := range results {
		details, err := json.Marshal(result)
		if err != nil {
			vc.Logger.WithError(err).Warn("failed to marshal verification details")
			details = []byte("{}")
		}
		record := models.VerificationRecord{
			JobID:   jobID,
			Email:   result.Email,
			Status:  string(result.Status),
			Score:   result.Score,
			Details: string(details),
		}
		if err := vc.Store.AddVerificationRecord(&record); err != nil {
			vc.Logger.WithError(err).WithField("email", result.Email).Error("failed to persist verification record")
		}
	}

	job, err := vc.Store.GetVerificationJob(jobID)
	if err != nil {
		vc.Logger.WithError(err).Error("failed to reload verification job")
		return
	}
	completed := time.Now()
	job.Status = "completed"
	job.StartedAt = &started
	job.CompletedAt = &completed
	job.ValidCount = summary.Valid
	job.InvalidCount = summary.Invalid
	job.RiskyCount = summary.Risky
	job.UnknownCount = summary.Unknown
	job.ErrorCount = summary.Errors
	if err := vc.Store.UpdateVerificationJob(job); err != nil {
		vc.Logger.WithError(err).Error("failed to finalize verification job")
	}

	vc.Logger.WithFields(logrus.Fields{
		"job_id":  jobID,
		"total":   summary.Total,
		"valid":   summary.Valid,
		"invalid": summary.Invalid,
		"risky":   summary.Risky,
	}).Info("bulk verification completed")
}
