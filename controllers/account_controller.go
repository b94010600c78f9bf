package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailblast/models"
	"mailblast/store"
	"mailblast/utils"
)

type AccountController struct {
	Store     *store.Store
	Transport utils.Transport
	Logger    *logrus.Logger
}

func NewAccountController(st *store.Store, transport utils.Transport, logger *logrus.Logger) *AccountController {
	return &AccountController{
		Store:     st,
		Transport: transport,
		Logger:    logger,
	}
}

type accountInput struct {
	Name         string `json:"name" validate:"required,min=1,max=200"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	FromName     string `json:"from_name" validate:"required"`
	SMTPHost     string `json:"smtp_host" validate:"required"`
	SMTPPort     int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	SMTPUsername string `json:"smtp_username" validate:"required"`
	SMTPPassword string `json:"smtp_password"`
	Encryption   string `json:"encryption" validate:"omitempty,oneof=SSL TLS STARTTLS NONE"`
	DailyLimit   int    `json:"daily_limit" validate:"min=0"`
	Priority     int    `json:"priority"`
	IsActive     *bool  `json:"is_active"`
}

// CreateAccount registers a sending account; the password is encrypted
// before it touches the database.
func (ac *AccountController) CreateAccount(c *fiber.Ctx) error {
	var input accountInput
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
	if input.SMTPPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "smtp_password is required",
		})
	}

	encrypted, err := utils.Encrypt(input.SMTPPassword)
	if err != nil {
		ac.Logger.WithError(err).Error("failed to encrypt SMTP password")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store credentials",
		})
	}

	encryption := input.Encryption
	if encryption == "" {
		encryption = "STARTTLS"
	}
	dailyLimit := input.DailyLimit
	if dailyLimit == 0 {
		dailyLimit = 500
	}

	account := models.SMTPAccount{
		Name:         input.Name,
		FromEmail:    input.FromEmail,
		FromName:     input.FromName,
		SMTPHost:     input.SMTPHost,
		SMTPPort:     input.SMTPPort,
		SMTPUsername: input.SMTPUsername,
		SMTPPassword: encrypted,
		Encryption:   encryption,
		DailyLimit:   dailyLimit,
		Priority:     input.Priority,
		IsActive:     true,
	}
	if input.IsActive != nil {
		account.IsActive = *input.IsActive
	}

	if err := ac.Store.DB().Create(&account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	account.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(account)
}

// GetAccounts lists all sending accounts without credentials
func (ac *AccountController) GetAccounts(c *fiber.Ctx) error {
	var accounts []models.SMTPAccount
	if err := ac.Store.DB().Order("priority DESC, id ASC").Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}
	for i := range accounts {
		accounts[i].Sanitize()
	}
	return c.JSON(accounts)
}

// UpdateAccount edits account settings; password only changes when a new
// one is posted.
func (ac *AccountController) UpdateAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}

	var account models.SMTPAccount
	if err := ac.Store.DB().First(&account, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	var input accountInput
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

	account.Name = input.Name
	account.FromEmail = input.FromEmail
	account.FromName = input.FromName
	account.SMTPHost = input.SMTPHost
	account.SMTPPort = input.SMTPPort
	account.SMTPUsername = input.SMTPUsername
	if input.Encryption != "" {
		account.Encryption = input.Encryption
	}
	if input.DailyLimit > 0 {
		account.DailyLimit = input.DailyLimit
	}
	account.Priority = input.Priority
	if input.IsActive != nil {
		account.IsActive = *input.IsActive
	}
	if input.SMTPPassword != "" {
		encrypted, err := utils.Encrypt(input.SMTPPassword)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store credentials",
			})
		}
		account.SMTPPassword = encrypted
	}

	if err := ac.Store.SaveSMTPAccount(&account); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update account",
		})
	}

	account.Sanitize()
	return c.JSON(account)
}

// DeleteAccount removes a sending account
func (ac *AccountController) DeleteAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}
	if err := ac.Store.DB().Delete(&models.SMTPAccount{}, id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete account",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Account deleted successfully",
	})
}

// TestAccount sends a probe message through the account to verify its
// credentials end to end.
func (ac *AccountController) TestAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}

	var account models.SMTPAccount
	if err := ac.Store.DB().First(&account, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	var input struct {
		To string `json:"to" validate:"required,email"`
	}
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

	now := time.Now()
	sendErr := ac.Transport.Send(&account, &utils.OutgoingMessage{
		To:       input.To,
		Subject:  "SMTP configuration test",
		HTMLBody: "<p>This is a test message confirming your sending account works.</p>",
	})

	account.LastTestedAt = &now
	if sendErr != nil {
		msg := sendErr.Error()
		account.LastError = &msg
		account.Verified = false
	} else {
		account.LastError = nil
		account.Verified = true
	}
	if err := ac.Store.SaveSMTPAccount(&account); err != nil {
		ac.Logger.WithError(err).Warn("failed to persist account test result")
	}

	if sendErr != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Test send failed: " + sendErr.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Test message sent successfully",
	})
}
