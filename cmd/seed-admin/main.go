// seed-admin creates or updates the platform admin user.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// The password comes from SEED_ADMIN_PASSWORD; there is no default on purpose.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "millbooksAdmin"
	adminName     = "Millbooks Admin"
)

func main() {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	// The admin user is attached to the first mill in the DB; the ADMIN role
	// bypasses tenant scoping so the anchor mill only matters for the row.
	var mill models.Mill
	if err := db.WithContext(ctx).Model(&models.Mill{}).Select("id").First(&mill).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			fmt.Fprintln(os.Stderr, "no mills found in DB. Create a mill first, then rerun seed-admin.")
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "failed to lookup mill: %v\n", err)
		os.Exit(1)
	}

	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			MillId:       mill.ID.String(),
			Username:     adminUsername,
			PasswordHash: string(hashed),
			Name:         adminName,
			Role:         models.UserRoleAdmin,
			IsActive:     utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q\n", adminUsername)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password_hash": string(hashed),
		"name":          adminName,
		"is_active":     utils.NewTrue(),
		"mill_id":       mill.ID.String(),
		"role":          models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	_ = config.DeleteRedisKey("User:" + adminUsername)
	fmt.Printf("Updated admin user: username=%q\n", adminUsername)
}
