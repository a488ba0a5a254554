package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"carpool-backend/internal/utils"
)

// Утилита для выпуска долгоживущего админского токена.
// Использование: go run ./cmd/generate_admin_token
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("Переменная JWT_SECRET не задана")
	}

	token, err := utils.GenerateAdminJWT()
	if err != nil {
		log.Fatalf("Ошибка генерации админского токена: %v", err)
	}

	fmt.Println(token)
}
