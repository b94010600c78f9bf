package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailblast/models"
	"mailblast/store"
	"mailblast/utils"
)

type ContactController struct {
	Store  *store.Store
	Logger *logrus.Logger
}

func NewContactController(st *store.Store, logger *logrus.Logger) *ContactController {
	return &ContactController{
		Store:  st,
		Logger: logger,
	}
}

// ---------- Lists ----------

// CreateList creates a contact list
func (cn *ContactController) CreateList(c *fiber.Ctx) error {
	var input struct {
		Name        string `json:"name" validate:"required,min=1,max=200"`
		Description string `json:"description"`
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

	list := models.ContactList{
		Name:        input.Name,
		Description: input.Description,
	}
	if err := cn.Store.DB().Create(&list).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create list",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(list)
}

// GetLists returns all contact lists with refreshed counts
func (cn *ContactController) GetLists(c *fiber.Ctx) error {
	var lists []models.ContactList
	if err := cn.Store.DB().Order("created_at DESC").Find(&lists).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch lists",
		})
	}

	for i := range lists {
		var total, active, bounced int64
		cn.Store.DB().Model(&models.Contact{}).Where("contact_list_id = ?", lists[i].ID).Count(&total)
		cn.Store.DB().Model(&models.Contact{}).
			Where("contact_list_id = ? AND status = ?", lists[i].ID, models.ContactStatusActive).Count(&active)
		cn.Store.DB().Model(&models.Contact{}).
			Where("contact_list_id = ? AND status = ?", lists[i].ID, models.ContactStatusBounced).Count(&bounced)
		lists[i].ContactCount = int(total)
		lists[i].ActiveCount = int(active)
		lists[i].BouncedCount = int(bounced)
	}
	return c.JSON(lists)
}

// DeleteList removes a list and detaches its contacts
func (cn *ContactController) DeleteList(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid list id",
		})
	}

	tx := cn.Store.DB().Begin()
	if err := tx.Model(&models.Contact{}).
		Where("contact_list_id = ?", id).
		Update("contact_list_id", nil).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to detach contacts",
		})
	}
	if err := tx.Delete(&models.ContactList{}, id).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete list",
		})
	}
	tx.Commit()

	return c.JSON(fiber.Map{
		"message": "List deleted successfully",
	})
}

// ---------- Contacts ----------

type contactInput struct {
	Email         string            `json:"email" validate:"required,email"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Company       string            `json:"company"`
	Position      string            `json:"position"`
	Phone         string            `json:"phone"`
	Website       string            `json:"website"`
	ContactListID *uint             `json:"contact_list_id"`
	Tags          []string          `json:"tags"`
	CustomFields  map[string]string `json:"custom_fields"`
}

// CreateContact adds a contact with optional tags and custom fields
func (cn *ContactController) CreateContact(c *fiber.Ctx) error {
	var input contactInput
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

	contact := models.Contact{
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Company:       input.Company,
		Position:      input.Position,
		Phone:         input.Phone,
		Website:       input.Website,
		ContactListID: input.ContactListID,
		Status:        models.ContactStatusActive,
	}

	tx := cn.Store.DB().Begin()
	if err := tx.Create(&contact).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Contact already exists",
		})
	}
	for _, tag := range input.Tags {
		if err := tx.Create(&models.ContactTag{ContactID: contact.ID, Tag: tag}).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save tags",
			})
		}
	}
	for name, value := range input.CustomFields {
		if err := tx.Create(&models.ContactCustomField{ContactID: contact.ID, Name: name, Value: value}).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save custom fields",
			})
		}
	}
	tx.Commit()

	return c.Status(fiber.StatusCreated).JSON(contact)
}

// GetContacts returns contacts, filterable by list, tag and status
func (cn *ContactController) GetContacts(c *fiber.Ctx) error {
	query := cn.Store.DB().Preload("Tags").Preload("CustomFields")

	if listID := c.QueryInt("list_id"); listID > 0 {
		query = query.Where("contact_list_id = ?", listID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if tag := c.Query("tag"); tag != "" {
		query = query.Where(
			"id IN (?)",
			cn.Store.DB().Model(&models.ContactTag{}).Select("contact_id").Where("tag = ?", tag),
		)
	}

	var contacts []models.Contact
	if err := query.Order("created_at DESC").Limit(500).Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}
	return c.JSON(contacts)
}

// UpdateContact edits a contact's profile fields
func (cn *ContactController) UpdateContact(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contact id",
		})
	}

	var contact models.Contact
	if err := cn.Store.DB().First(&contact, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	contact.FirstName = input.FirstName
	contact.LastName = input.LastName
	contact.Company = input.Company
	contact.Position = input.Position
	contact.Phone = input.Phone
	contact.Website = input.Website
	if input.ContactListID != nil {
		contact.ContactListID = input.ContactListID
	}

	if err := cn.Store.UpdateContact(&contact); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update contact",
		})
	}
	return c.JSON(contact)
}

// DeleteContact removes a contact and its tags and custom fields
func (cn *ContactController) DeleteContact(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contact id",
		})
	}

	tx := cn.Store.DB().Begin()
	tx.Where("contact_id = ?", id).Delete(&models.ContactTag{})
	tx.Where("contact_id = ?", id).Delete(&models.ContactCustomField{})
	if err := tx.Delete(&models.Contact{}, id).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contact",
		})
	}
	tx.Commit()

	return c.JSON(fiber.Map{
		"message": "Contact deleted successfully",
	})
}

// ---------- Suppression ----------

// GetBlacklist returns all suppressed addresses
func (cn *ContactController) GetBlacklist(c *fiber.Ctx) error {
	var entries []models.BlacklistEntry
	if err := cn.Store.DB().Order("created_at DESC").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch blacklist",
		})
	}
	return c.JSON(entries)
}

// AddToBlacklist manually suppresses an address
func (cn *ContactController) AddToBlacklist(c *fiber.Ctx) error {
	var input struct {
		Email  string `json:"email" validate:"required,email"`
		Reason string `json:"reason"`
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

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := cn.Store.AddToBlacklist(email, models.BlacklistSourceManual, input.Reason); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add to blacklist",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Address blacklisted",
	})
}

// RemoveFromBlacklist lifts a suppression
func (cn *ContactController) RemoveFromBlacklist(c *fiber.Ctx) error {
	email := strings.ToLower(strings.TrimSpace(c.Params("email")))
	err := cn.Store.DB().Where("email = ?", email).Delete(&models.BlacklistEntry{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to remove from blacklist",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Address removed from blacklist",
	})
}
