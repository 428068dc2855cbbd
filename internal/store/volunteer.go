package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tobiasvance/crewdesk/internal/model"
)

// VolunteerStore owns the roster: volunteer profiles, skills, and
// availability windows. The scheduling engine reads this data and never
// writes it.
type VolunteerStore struct {
	db *sql.DB
}

func NewVolunteerStore(db *sql.DB) *VolunteerStore {
	return &VolunteerStore{db: db}
}

const volunteerCols = `id, name, email, skills, created_at, updated_at`

func scanVolunteer(scanner interface{ Scan(...any) error }) (*model.Volunteer, error) {
	var v model.Volunteer
	var skills string
	err := scanner.Scan(&v.ID, &v.Name, &v.Email, &skills, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skills), &v.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return &v, nil
}

func encodeSkills(skills []string) (string, error) {
	if skills == nil {
		skills = []string{}
	}
	data, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("encode skills: %w", err)
	}
	return string(data), nil
}

func (s *VolunteerStore) Create(name, email string, skills []string) (*model.Volunteer, error) {
	encoded, err := encodeSkills(skills)
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`INSERT INTO volunteers (name, email, skills) VALUES (?, ?, ?)`,
		name, email, encoded,
	)
	if err != nil {
		return nil, fmt.Errorf("insert volunteer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *VolunteerStore) GetByID(id int64) (*model.Volunteer, error) {
	row := s.db.QueryRow(`SELECT `+volunteerCols+` FROM volunteers WHERE id = ?`, id)
	v, err := scanVolunteer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get volunteer: %w", err)
	}
	return v, nil
}

func (s *VolunteerStore) List() ([]model.Volunteer, error) {
	rows, err := s.db.Query(`SELECT ` + volunteerCols + ` FROM volunteers ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	defer rows.Close()

	var volunteers []model.Volunteer
	for rows.Next() {
		v, err := scanVolunteer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan volunteer: %w", err)
		}
		volunteers = append(volunteers, *v)
	}
	return volunteers, rows.Err()
}

func (s *VolunteerStore) Update(id int64, name, email string, skills []string) (*model.Volunteer, error) {
	encoded, err := encodeSkills(skills)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`UPDATE volunteers SET name = ?, email = ?, skills = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, email, encoded, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update volunteer: %w", err)
	}
	return s.GetByID(id)
}

func (s *VolunteerStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM volunteers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete volunteer: %w", err)
	}
	return nil
}

// --- Availability ---

// SetAvailability replaces the volunteer's availability windows.
func (s *VolunteerStore) SetAvailability(volunteerID int64, windows []model.AvailabilityWindow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM volunteer_availability WHERE volunteer_id = ?`, volunteerID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}
	for _, w := range windows {
		if _, err := tx.Exec(
			`INSERT INTO volunteer_availability (volunteer_id, start_time, end_time) VALUES (?, ?, ?)`,
			volunteerID, w.StartTime.UTC(), w.EndTime.UTC(),
		); err != nil {
			return fmt.Errorf("insert availability window: %w", err)
		}
	}
	return tx.Commit()
}

func (s *VolunteerStore) ListAvailability(volunteerID int64) ([]model.AvailabilityWindow, error) {
	rows, err := s.db.Query(
		`SELECT id, volunteer_id, start_time, end_time FROM volunteer_availability
		 WHERE volunteer_id = ? ORDER BY start_time ASC`,
		volunteerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var start, end time.Time
		if err := rows.Scan(&w.ID, &w.VolunteerID, &start, &end); err != nil {
			return nil, fmt.Errorf("scan availability window: %w", err)
		}
		w.StartTime, w.EndTime = start, end
		windows = append(windows, w)
	}
	return windows, rows.Err()
}
