package seeders

import (
	"errors"
	"log"
	"os"

	"prepxiq_go/database"
	"prepxiq_go/models"
	"prepxiq_go/utils"

	"gorm.io/gorm"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedOwner()
	SeedNotificationSettings()
	SeedSMSSettings()

	log.Println("Database seeding completed successfully!")
}

// SeedOwner creates the first owner account when the users table is empty.
func SeedOwner() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	password := os.Getenv("SEED_OWNER_PASSWORD")
	if password == "" {
		password = "changeme123"
		log.Println("SEED_OWNER_PASSWORD not set, using default owner password; change it after first login")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		log.Printf("Failed to hash owner password: %v", err)
		return
	}

	owner := models.User{
		Username: "owner",
		Password: hash,
		Email:    os.Getenv("SEED_OWNER_EMAIL"),
		Role:     models.RoleOwner,
		Status:   "active",
	}
	if err := database.DB.Create(&owner).Error; err != nil {
		log.Printf("Failed to seed owner: %v", err)
		return
	}
	log.Println("Seeded owner account")
}

// SeedNotificationSettings provisions the singleton settings row.
func SeedNotificationSettings() {
	var s models.NotificationSettings
	err := database.DB.First(&s, models.NotificationSettingsID).Error
	if err == nil {
		log.Println("Notification settings already present, skipping...")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to read notification settings: %v", err)
		return
	}
	defaults := models.DefaultNotificationSettings()
	if err := database.DB.Create(&defaults).Error; err != nil {
		log.Printf("Failed to seed notification settings: %v", err)
		return
	}
	log.Println("Seeded notification settings")
}

// SeedSMSSettings writes the console provider. It only sends in development;
// elsewhere runs log failures until a real provider is saved.
func SeedSMSSettings() {
	var count int64
	database.DB.Model(&models.AppSetting{}).Where("`key` = ?", "sms_provider").Count(&count)
	if count > 0 {
		log.Println("SMS settings already seeded, skipping...")
		return
	}
	rows := []models.AppSetting{
		{Key: "sms_provider", Value: "console"},
		{Key: "sms_country_code", Value: "91"},
		{Key: "sms_sender_id", Value: "PRPXIQ"},
	}
	if err := database.DB.Create(&rows).Error; err != nil {
		log.Printf("Failed to seed SMS settings: %v", err)
		return
	}
	log.Println("Seeded SMS settings")
}
