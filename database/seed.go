package database

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedAppSettings(); err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}

	if err := s.SeedSampleCatalog(); err != nil {
		return fmt.Errorf("failed to seed sample catalog: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the platform admin. This account also owns the
// wallet that collects the platform revenue share.
func (s *Seeder) SeedAdminUser() error {
	// Check if admin already exists
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Admin user already exists, skipping...")
		return nil
	}

	// Get admin credentials from environment variables
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	// Hash password
	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "Platform Administrator",
		Role:         model.RoleAdmin,
		TokenVersion: 0,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	// The platform wallet must exist before the first revenue split runs
	wallet := &model.Wallet{UserID: admin.ID, Balance: 0}
	if err := s.db.Create(wallet).Error; err != nil {
		return err
	}

	log.Printf("✅ Created admin user: %s\n", admin.Email)
	return nil
}

// SeedAppSettings creates the settings the payment pipeline reads at
// runtime: the platform account and the default revenue share.
func (s *Seeder) SeedAppSettings() error {
	var count int64
	if err := s.db.Model(&model.AppSetting{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  App settings already exist, skipping...")
		return nil
	}

	var admin model.User
	if err := s.db.Where("role = ?", model.RoleAdmin).Order("id ASC").First(&admin).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Println("⚠️  No admin user found, skipping app settings (platform account would dangle)")
			return nil
		}
		return err
	}

	settings := []model.AppSetting{
		{
			Key:         model.SettingPlatformAccountUserID,
			Value:       strconv.FormatUint(uint64(admin.ID), 10),
			Type:        "int",
			Description: "User whose wallet receives the platform revenue share",
			IsPublic:    false,
		},
		{
			Key:         model.SettingDefaultAdminShare,
			Value:       strconv.Itoa(model.DefaultAdminSharePercentage),
			Type:        "int",
			Description: "Platform share percentage applied to new courses",
			IsPublic:    true,
		},
	}

	if err := s.db.Create(&settings).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d app settings\n", len(settings))
	return nil
}

// SeedSampleCatalog creates a demo instructor with a few published
// courses so a fresh environment has something to buy.
func (s *Seeder) SeedSampleCatalog() error {
	if os.Getenv("SEED_SAMPLE_DATA") != "true" {
		log.Println("⏭️  SEED_SAMPLE_DATA not set, skipping sample catalog...")
		return nil
	}

	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Courses already exist, skipping...")
		return nil
	}

	passwordHash, err := auth.HashPassword("instructor123")
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	instructor := &model.User{
		Email:        "instructor@learnbridge.app",
		PasswordHash: passwordHash,
		Name:         "Demo Instructor",
		Role:         model.RoleInstructor,
	}
	if err := s.db.Create(instructor).Error; err != nil {
		return err
	}
	if err := s.db.Create(&model.Wallet{UserID: instructor.ID}).Error; err != nil {
		return err
	}

	offer := int64(149900)
	courses := []model.Course{
		{
			CreatorID:            instructor.ID,
			Title:                "Go for Backend Engineers",
			Description:          "Build production HTTP services in Go, from routing to deployment",
			Price:                249900,
			OfferPrice:           &offer,
			AdminSharePercentage: model.DefaultAdminSharePercentage,
			Published:            true,
		},
		{
			CreatorID:            instructor.ID,
			Title:                "PostgreSQL Deep Dive",
			Description:          "Indexes, transactions and query planning explained with real workloads",
			Price:                199900,
			AdminSharePercentage: model.DefaultAdminSharePercentage,
			Published:            true,
		},
		{
			CreatorID:            instructor.ID,
			Title:                "Distributed Systems Fundamentals",
			Description:          "Consensus, replication and failure handling for working engineers",
			Price:                299900,
			AdminSharePercentage: model.DefaultAdminSharePercentage,
			Published:            false,
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	studentHash, err := auth.HashPassword("student123")
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	student := &model.User{
		Email:        "student@learnbridge.app",
		PasswordHash: studentHash,
		Name:         "Demo Student",
		Role:         model.RoleStudent,
	}
	if err := s.db.Create(student).Error; err != nil {
		return err
	}
	if err := s.db.Create(&model.Wallet{UserID: student.ID}).Error; err != nil {
		return err
	}

	log.Printf("✅ Created demo instructor, demo student and %d courses\n", len(courses))
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
