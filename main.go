package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"ocrapi/cmd"
	"ocrapi/internal/config"
	"ocrapi/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load configuration; the command reloads it once flags are parsed
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting OCR API")

	cmd.Execute()

	log.Debug().Msg("OCR API shutdown")
	os.Exit(0)
}
