package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/benbjohnson/clock"

	"aerialcapture/internal/config"
	"aerialcapture/internal/logger"
	"aerialcapture/internal/repository/sqlite"
	"aerialcapture/internal/service/storage"
	"aerialcapture/internal/service/upload"
)

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DBPath, "Catalog database path")
	limit := flag.Int("limit", 0, "Maximum number of captures to resend (0 for all)")
	flag.Parse()

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewCaptureRepository(db)

	pending, err := repo.ListPendingUploads(*limit)
	if err != nil {
		log.Fatalf("Failed to list pending uploads: %v", err)
	}
	if len(pending) == 0 {
		fmt.Println("No pending uploads")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	uploader := upload.NewUploadService(cfg, nil, repo, clock.New(), appLogger)
	fmt.Printf("Resending %d captures to %s\n", len(pending), cfg.UploadURL)

	failed := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := uploader.DeliverPaced(ctx, storage.JobFromRow(&pending[i])); err != nil {
			failed++
		}
	}

	fmt.Printf("Uploaded %d, failed %d\n", uploader.Sent(), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
