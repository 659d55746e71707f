package main

import (
	"flag"
	"fmt"
	"log"

	"aerialcapture/internal/config"
	"aerialcapture/internal/repository/sqlite"
	"aerialcapture/internal/service/storage"
)

func main() {
	cfg := config.Load()
	imagesDir := flag.String("images", cfg.SaveDir, "Directory containing captures")
	dbPath := flag.String("db", cfg.DBPath, "Database path")
	flag.Parse()

	fmt.Printf("Migrating captures from %s to database %s\n", *imagesDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewCaptureRepository(db)

	rows, skipped, err := storage.ScanDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to scan captures: %v", err)
	}
	for _, name := range skipped {
		log.Printf("Skipping %s: not a capture file", name)
	}
	if len(rows) == 0 {
		fmt.Println("No captures found to migrate")
		return
	}

	inserted, existing := 0, 0
	for _, row := range rows {
		found, err := repo.GetByFilename(row.Filename)
		if err != nil {
			log.Fatalf("Failed to check %s: %v", row.Filename, err)
		}
		if found != nil {
			existing++
			continue
		}
		if err := repo.Insert(row); err != nil {
			log.Fatalf("Failed to insert %s: %v", row.Filename, err)
		}
		inserted++
	}

	fmt.Printf("Migrated %d captures (%d already catalogued, %d skipped)\n", inserted, existing, len(skipped))

	counts, err := repo.CountByStatus()
	if err == nil {
		fmt.Printf("\nCatalog:\n")
		for status, count := range counts {
			fmt.Printf("   %s: %d\n", status, count)
		}
	}
}
