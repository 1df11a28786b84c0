package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"candlebot/internal/cli"
)

func main() {
	// GEMINI_API_KEY usually lives in .env next to the robot scripts.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cli.Execute()
}
