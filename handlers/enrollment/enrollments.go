package enrollment

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"gorm.io/gorm"
)

// EnrollmentHandler handles enrollment queries
type EnrollmentHandler struct {
	db *gorm.DB
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(db *gorm.DB) *EnrollmentHandler {
	return &EnrollmentHandler{db: db}
}

// ListMyCourses handles GET /api/v1/enrollments
func (h *EnrollmentHandler) ListMyCourses(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var enrollments []model.Enrollment
	if err := h.db.Preload("Course").
		Where("user_id = ?", user.ID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch enrollments")
	}

	return response.Success(c, enrollments)
}

// CheckAccess handles GET /api/v1/enrollments/:courseID
func (h *EnrollmentHandler) CheckAccess(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID := c.Params("id")

	var count int64
	if err := h.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", user.ID, courseID).
		Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to check enrollment")
	}

	return response.Success(c, fiber.Map{"enrolled": count > 0})
}

// ListCourseStudents handles GET /api/v1/courses/:id/students (creator only)
func (h *EnrollmentHandler) ListCourseStudents(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if course.CreatorID != user.ID && user.Role != model.RoleAdmin {
		return response.Forbidden(c, "Only the course creator can view students")
	}

	var enrollments []model.Enrollment
	if err := h.db.Preload("User").
		Where("course_id = ?", course.ID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch students")
	}

	return response.Success(c, enrollments)
}
