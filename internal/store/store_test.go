package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/tobiasvance/crewdesk/internal/database"
	"github.com/tobiasvance/crewdesk/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// Every pooled connection to :memory: would be its own empty database.
	db.SetMaxOpenConns(1)
	return db
}

func seedCrew(t *testing.T, db *sql.DB) *model.Crew {
	t.Helper()
	crew, err := NewCrewStore(db).Create("Gate Crew")
	if err != nil {
		t.Fatalf("seed crew: %v", err)
	}
	return crew
}

func window(hour, durationHours int) (time.Time, time.Time) {
	start := time.Date(2026, 7, 10, hour, 0, 0, 0, time.UTC)
	return start, start.Add(time.Duration(durationHours) * time.Hour)
}
