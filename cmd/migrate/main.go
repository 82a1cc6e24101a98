package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/luvhive/luvhive-backend/pkg/database"
)

// Mystery Match 테이블을 만들고 현재 매치 현황을 출력한다.
// 서버도 시작할 때 같은 스키마를 적용하지만, 배포 전에 따로 실행할 수 있다.
func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate: ", err)
	}
	fmt.Println("Schema is up to date")

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(MAX(unlock_level), 0)
		FROM mystery_matches
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		log.Fatal("Failed to summarize matches: ", err)
	}
	defer rows.Close()

	fmt.Println("\nMatches:")
	for rows.Next() {
		var (
			status   string
			count    int
			maxLevel int
		)
		if err := rows.Scan(&status, &count, &maxLevel); err != nil {
			log.Fatal("Failed to scan row: ", err)
		}
		fmt.Printf("  - %s: %d (highest unlock level %d)\n", status, count, maxLevel)
	}
	if err := rows.Err(); err != nil {
		log.Fatal("Failed to read rows: ", err)
	}
}
