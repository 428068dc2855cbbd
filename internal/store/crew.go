package store

import (
	"database/sql"
	"fmt"

	"github.com/tobiasvance/crewdesk/internal/model"
)

type CrewStore struct {
	db *sql.DB
}

func NewCrewStore(db *sql.DB) *CrewStore {
	return &CrewStore{db: db}
}

const crewCols = `id, name, created_at`

func scanCrew(scanner interface{ Scan(...any) error }) (*model.Crew, error) {
	var c model.Crew
	if err := scanner.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CrewStore) Create(name string) (*model.Crew, error) {
	result, err := s.db.Exec(`INSERT INTO crews (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert crew: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CrewStore) GetByID(id int64) (*model.Crew, error) {
	row := s.db.QueryRow(`SELECT `+crewCols+` FROM crews WHERE id = ?`, id)
	c, err := scanCrew(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get crew: %w", err)
	}
	return c, nil
}

func (s *CrewStore) List() ([]model.Crew, error) {
	rows, err := s.db.Query(`SELECT ` + crewCols + ` FROM crews ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list crews: %w", err)
	}
	defer rows.Close()

	var crews []model.Crew
	for rows.Next() {
		c, err := scanCrew(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crew: %w", err)
		}
		crews = append(crews, *c)
	}
	return crews, rows.Err()
}

func (s *CrewStore) Rename(id int64, name string) (*model.Crew, error) {
	_, err := s.db.Exec(`UPDATE crews SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("rename crew: %w", err)
	}
	return s.GetByID(id)
}

func (s *CrewStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM crews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete crew: %w", err)
	}
	return nil
}
