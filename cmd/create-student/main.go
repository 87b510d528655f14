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

	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, nil)
	studentService := service.NewStudentService(studentRepo, authService, log)

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Register New Student ===")

	fmt.Print("Enter Registration Number: ")
	regNo, _ := reader.ReadString('\n')
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		fmt.Println("Error: Registration number is required")
		return
	}

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Programme: ")
	programme, _ := reader.ReadString('\n')
	programme = strings.TrimSpace(programme)
	if programme == "" {
		fmt.Println("Error: Programme is required")
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

	student, err := studentService.Create(ctx, &model.CreateStudentRequest{
		RegNo:     regNo,
		Name:      name,
		Programme: programme,
		Password:  password,
	})
	if err != nil {
		fmt.Printf("Error: failed to create student: %v\n", err)
		return
	}

	fmt.Printf("Student created with ID %d\n", student.ID)
}
