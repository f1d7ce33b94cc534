package course

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
	"github.com/sahilchouksey/learnbridge/services/storage"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"github.com/sahilchouksey/learnbridge/utils/validation"
	"gorm.io/gorm"
)

// CourseHandler handles course catalog requests
type CourseHandler struct {
	db        *gorm.DB
	spaces    *storage.SpacesClient
	notifier  services.Notifier
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler. spaces and notifier
// may be nil when those integrations are not configured.
func NewCourseHandler(db *gorm.DB, spaces *storage.SpacesClient, notifier services.Notifier) *CourseHandler {
	return &CourseHandler{
		db:        db,
		spaces:    spaces,
		notifier:  notifier,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	Title                string `json:"title" validate:"required,min=3,max=255"`
	Description          string `json:"description" validate:"omitempty,max=5000"`
	Price                int64  `json:"price" validate:"required,min=0"`
	OfferPrice           *int64 `json:"offer_price" validate:"omitempty,min=0"`
	AdminSharePercentage *int   `json:"admin_share_percentage" validate:"omitempty,min=0,max=100"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	Title                string  `json:"title" validate:"omitempty,min=3,max=255"`
	Description          *string `json:"description" validate:"omitempty,max=5000"`
	Price                *int64  `json:"price" validate:"omitempty,min=0"`
	OfferPrice           *int64  `json:"offer_price" validate:"omitempty,min=0"`
	AdminSharePercentage *int    `json:"admin_share_percentage" validate:"omitempty,min=0,max=100"`
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	// Parse query parameters
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")
	creatorID := c.Query("creator_id", "")

	// Only published courses are visible in the public catalog
	query := h.db.Model(&model.Course{}).Where("published = ?", true)

	if search != "" {
		query = query.Where("title ILIKE ? OR description ILIKE ?",
			"%"+search+"%", "%"+search+"%")
	}

	if creatorID != "" {
		query = query.Where("creator_id = ?", creatorID)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var courses []model.Course
	if err := query.Preload("Creator").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, pagination)
}

// ListMyCourses handles GET /api/v1/courses/mine (instructor catalog,
// drafts included)
func (h *CourseHandler) ListMyCourses(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var courses []model.Course
	if err := h.db.Where("creator_id = ?", user.ID).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Success(c, courses)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	var course model.Course
	if err := h.db.Preload("Creator").First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Drafts are visible only to their creator and admins
	if !course.Published {
		user, ok := middleware.GetUser(c)
		if !ok || user == nil || (course.CreatorID != user.ID && user.Role != model.RoleAdmin) {
			return response.NotFound(c, "Course not found")
		}
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	if !user.IsInstructor() {
		return response.Forbidden(c, "Only instructors can create courses")
	}

	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.OfferPrice != nil && *req.OfferPrice > req.Price {
		return response.BadRequest(c, "Offer price cannot exceed the regular price")
	}

	course := model.Course{
		CreatorID:   user.ID,
		Title:       validation.SanitizeString(req.Title),
		Description: validation.SanitizeString(req.Description),
		Price:       req.Price,
		OfferPrice:  req.OfferPrice,
	}
	if req.AdminSharePercentage != nil {
		// Only admins set the platform cut; instructors get the default
		if user.Role != model.RoleAdmin {
			return response.Forbidden(c, "Only admins can set the platform share")
		}
		course.AdminSharePercentage = *req.AdminSharePercentage
	} else {
		course.AdminSharePercentage = h.defaultAdminShare(c)
	}

	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	return response.Created(c, course)
}

// defaultAdminShare reads the platform-wide default cut from settings
func (h *CourseHandler) defaultAdminShare(c *fiber.Ctx) int {
	var setting model.AppSetting
	err := h.db.WithContext(c.Context()).
		Where("key = ?", model.SettingDefaultAdminShare).
		First(&setting).Error
	if err != nil {
		return model.DefaultAdminSharePercentage
	}

	share, err := strconv.Atoi(setting.Value)
	if err != nil || share < 0 || share > 100 {
		return model.DefaultAdminSharePercentage
	}
	return share
}

// UpdateCourse handles PUT /api/v1/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID != user.ID && user.Role != model.RoleAdmin {
		return response.Forbidden(c, "Only the course creator can update this course")
	}

	if req.Title != "" {
		course.Title = validation.SanitizeString(req.Title)
	}
	if req.Description != nil {
		course.Description = validation.SanitizeString(*req.Description)
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.OfferPrice != nil {
		course.OfferPrice = req.OfferPrice
	}
	if course.OfferPrice != nil && *course.OfferPrice > course.Price {
		return response.BadRequest(c, "Offer price cannot exceed the regular price")
	}
	if req.AdminSharePercentage != nil {
		if user.Role != model.RoleAdmin {
			return response.Forbidden(c, "Only admins can change the platform share")
		}
		course.AdminSharePercentage = *req.AdminSharePercentage
	}

	// Price and split changes never rewrite past orders; amounts were
	// snapshotted at purchase time
	if err := h.db.Save(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	return response.SuccessWithMessage(c, "Course updated successfully", course)
}

// PublishCourse handles POST /api/v1/courses/:id/publish
func (h *CourseHandler) PublishCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID != user.ID && user.Role != model.RoleAdmin {
		return response.Forbidden(c, "Only the course creator can publish this course")
	}

	if course.Published {
		return response.SuccessWithMessage(c, "Course is already published", course)
	}

	if err := h.db.Model(&course).Update("published", true).Error; err != nil {
		return response.InternalServerError(c, "Failed to publish course")
	}
	course.Published = true

	if h.notifier != nil {
		h.notifier.CreateNotificationsForUsers(c.Context(), []uint{course.CreatorID}, services.NotificationInput{
			EventType:  model.NotificationEventCoursePublished,
			EntityType: model.NotificationEntityCourse,
			EntityID:   course.ID,
			Message:    course.Title + " is now live",
			Link:       "/courses/" + id,
		})
	}

	return response.SuccessWithMessage(c, "Course published successfully", course)
}

// UploadThumbnail handles POST /api/v1/courses/:id/thumbnail
func (h *CourseHandler) UploadThumbnail(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	if h.spaces == nil {
		return response.ServiceUnavailable(c, "Media storage is not configured")
	}

	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID != user.ID && user.Role != model.RoleAdmin {
		return response.Forbidden(c, "Only the course creator can update the thumbnail")
	}

	fileHeader, err := c.FormFile("thumbnail")
	if err != nil {
		return response.BadRequest(c, "Thumbnail file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read thumbnail file")
	}
	defer file.Close()

	oldKey := course.ThumbnailKey

	key, url, err := h.spaces.UploadThumbnail(c.Context(), course.ID, fileHeader.Filename, file)
	if err != nil {
		return response.InternalServerError(c, "Failed to upload thumbnail")
	}

	if err := h.db.Model(&course).Update("thumbnail_key", key).Error; err != nil {
		return response.InternalServerError(c, "Failed to save thumbnail")
	}

	if oldKey != "" {
		h.spaces.Delete(c.Context(), oldKey)
	}

	return response.SuccessWithMessage(c, "Thumbnail uploaded successfully", fiber.Map{
		"thumbnail_key": key,
		"thumbnail_url": url,
	})
}

// DeleteCourse handles DELETE /api/v1/courses/:id
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID != user.ID && user.Role != model.RoleAdmin {
		return response.Forbidden(c, "Only the course creator can delete this course")
	}

	// Courses with enrolled students stay up; students keep what they paid for
	var enrollmentCount int64
	if err := h.db.Model(&model.Enrollment{}).Where("course_id = ?", id).Count(&enrollmentCount).Error; err != nil {
		return response.InternalServerError(c, "Failed to check course enrollments")
	}

	if enrollmentCount > 0 {
		return response.BadRequest(c, "Cannot delete a course with enrolled students")
	}

	// Delete course (soft delete)
	if err := h.db.Delete(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete course")
	}

	return response.SuccessWithMessage(c, "Course deleted successfully", nil)
}
