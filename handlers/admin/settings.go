package admin

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"gorm.io/gorm"
)

// ListSettings retrieves all app settings
// GET /admin/settings
func ListSettings(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	var settings []model.AppSetting
	if err := db.Find(&settings).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	return response.SuccessWithMessage(c, "Settings retrieved successfully", settings)
}

// GetSetting retrieves a specific setting by key
// GET /admin/settings/:key
func GetSetting(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	key := c.Params("key")
	var setting model.AppSetting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Setting not found")
		}
		return response.InternalServerError(c, "Failed to fetch setting")
	}

	return response.SuccessWithMessage(c, "Setting retrieved successfully", setting)
}

// UpsertSetting creates or updates a setting
// PUT /admin/settings/:key
func UpsertSetting(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	key := c.Params("key")

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Value == "" {
		return response.BadRequest(c, "Value is required")
	}

	if msg := validateWellKnownSetting(db, key, req.Value); msg != "" {
		return response.BadRequest(c, msg)
	}

	var setting model.AppSetting
	err := db.Where("key = ?", key).First(&setting).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		setting = model.AppSetting{
			Key:         key,
			Value:       req.Value,
			Description: req.Description,
		}
		if err := db.Create(&setting).Error; err != nil {
			return response.InternalServerError(c, "Failed to create setting")
		}
	case err != nil:
		return response.InternalServerError(c, "Failed to fetch setting")
	default:
		updates := map[string]interface{}{"value": req.Value}
		if req.Description != "" {
			updates["description"] = req.Description
		}
		if err := db.Model(&setting).Updates(updates).Error; err != nil {
			return response.InternalServerError(c, "Failed to update setting")
		}
	}

	return response.SuccessWithMessage(c, "Setting saved successfully", setting)
}

// validateWellKnownSetting guards the keys the payment flow depends on.
// Returns an error message, or empty when valid.
func validateWellKnownSetting(db *gorm.DB, key, value string) string {
	switch key {
	case model.SettingPlatformAccountUserID:
		userID, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return "Platform account must be a user id"
		}
		var user model.User
		if err := db.First(&user, uint(userID)).Error; err != nil {
			return "Platform account user does not exist"
		}
		if user.Role != model.RoleAdmin {
			return "Platform account must be an admin user"
		}
	case model.SettingDefaultAdminShare:
		share, err := strconv.Atoi(value)
		if err != nil || share < 0 || share > 100 {
			return "Default platform share must be a percentage between 0 and 100"
		}
	}
	return ""
}

// DeleteSetting deletes a setting
// DELETE /admin/settings/:key
func DeleteSetting(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	key := c.Params("key")

	// The revenue split cannot run without a platform account
	if key == model.SettingPlatformAccountUserID {
		return response.BadRequest(c, "The platform account setting cannot be deleted")
	}

	result := db.Where("key = ?", key).Delete(&model.AppSetting{})

	if result.Error != nil {
		return response.InternalServerError(c, "Failed to delete setting")
	}
	if result.RowsAffected == 0 {
		return response.NotFound(c, "Setting not found")
	}

	return response.SuccessWithMessage(c, "Setting deleted successfully", fiber.Map{"key": key})
}
