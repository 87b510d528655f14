package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/opencampus/portal-backend/internal/config"
	"github.com/opencampus/portal-backend/internal/database"
	"github.com/opencampus/portal-backend/internal/logger"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/opencampus/portal-backend/internal/repository"
	"github.com/opencampus/portal-backend/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	adminRepo := repository.NewAdminRepository(pool)
	authService := service.NewAuthService(cfg, nil)

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Admin User ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	hash, err := authService.HashPassword(password)
	if err != nil {
		fmt.Printf("Error: failed to hash password: %v\n", err)
		return
	}

	admin := &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := adminRepo.Create(ctx, admin); err != nil {
		fmt.Printf("Error: failed to create admin: %v\n", err)
		return
	}

	fmt.Printf("Admin created with ID %d\n", admin.ID)
}
