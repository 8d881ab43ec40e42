package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/security"
)

// Environment variables used to bootstrap the first admin account.
const (
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// EnsureAdminFromEnv creates the first admin account from the environment
// when no admin exists yet. A populated admin table leaves the environment
// variables inert.
func EnsureAdminFromEnv(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("app: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	username := strings.TrimSpace(os.Getenv(EnvAdminUsername))
	password := os.Getenv(EnvAdminPassword)
	if username == "" || strings.TrimSpace(password) == "" {
		log.Warn("no admin account exists; set ADMIN_USERNAME and ADMIN_PASSWORD to bootstrap one")
		return nil
	}

	if errCreate := CreateAdminUser(conn, username, password); errCreate != nil {
		return errCreate
	}
	log.Infof("bootstrap admin %q created", username)
	return nil
}

// CreateAdminUser creates an admin account with a bcrypt-hashed password.
func CreateAdminUser(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return errors.New("app: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("app: admin username is required")
	}
	if len(password) < 6 {
		return errors.New("app: admin password must be at least 6 characters")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}

	admin := models.Admin{
		Username: username,
		Password: hashedPassword,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("app: create admin: %w", errCreate)
	}
	return nil
}
