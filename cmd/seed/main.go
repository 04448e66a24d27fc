package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"bookhub/pkg/database"
)

// defaultCategories is the starter catalog inserted on an empty database.
var defaultCategories = []string{
	"Romance",
	"Action",
	"Comedy",
	"Sci-fi",
	"Slice of life",
	"Horror",
	"Historical",
	"Fantasy",
	"Adventure",
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	n, err := seedCategories(ctx, db)
	if err != nil {
		log.Fatalf("seed categories failed: %v", err)
	}
	if n == 0 {
		log.Println("categories already present, nothing to do")
		return
	}
	log.Printf("✅ seeded %d categories", n)
}

// seedCategories fills the categories table when it is empty. A non-empty
// table is left alone so reruns never duplicate rows.
func seedCategories(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO categories (name) VALUES (?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, name := range defaultCategories {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return 0, err
		}
	}
	return len(defaultCategories), nil
}
