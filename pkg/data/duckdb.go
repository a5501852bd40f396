package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Tracker records which archives and images have been fully downloaded,
// so a re-run can skip sealed content instead of fetching it again.
// One tracker database lives inside each manga's output directory.
type Tracker struct {
	db *sql.DB
}

type FileInfo struct {
	Name      string
	ChapterID string
	Path      string
	Completed bool
}

type ImageInfo struct {
	Name      string
	Hash      string
	ChapterID string
}

const trackerFile = "download.db"

func InitDuckDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS file_info (
			name VARCHAR PRIMARY KEY,
			chapter_id VARCHAR,
			path VARCHAR,
			completed BOOLEAN DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS image_info (
			file_name VARCHAR,
			name VARCHAR,
			hash VARCHAR,
			chapter_id VARCHAR
		);
	`)
	return err
}

// OpenTracker opens (or creates) the tracker database under dir.
func OpenTracker(dir string) (*Tracker, error) {
	db, err := InitDuckDB(filepath.Join(dir, trackerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker: %w", err)
	}
	return &Tracker{db: db}, nil
}

// Recreate drops all tracked state. Used by --replace.
func (t *Tracker) Recreate() error {
	if _, err := t.db.Exec(`DELETE FROM image_info; DELETE FROM file_info;`); err != nil {
		return err
	}
	return nil
}

// Completed reports whether the named archive was sealed by a previous run.
func (t *Tracker) Completed(name string) (bool, error) {
	var completed bool
	err := t.db.QueryRow(`SELECT completed FROM file_info WHERE name = ?`, name).Scan(&completed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return completed, nil
}

// SaveFile upserts the archive entry, resetting its completed flag.
func (t *Tracker) SaveFile(info FileInfo) error {
	_, err := t.db.Exec(`
		INSERT INTO file_info (name, chapter_id, path, completed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			chapter_id = excluded.chapter_id,
			path = excluded.path,
			completed = excluded.completed
	`, info.Name, info.ChapterID, info.Path, info.Completed)
	return err
}

// ToggleComplete marks the archive sealed (or not).
func (t *Tracker) ToggleComplete(name string, completed bool) error {
	_, err := t.db.Exec(`UPDATE file_info SET completed = ? WHERE name = ?`, completed, name)
	return err
}

// AddImages records the images written into the named archive.
func (t *Tracker) AddImages(fileName string, images []ImageInfo) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM image_info WHERE file_name = ?`, fileName); err != nil {
		return err
	}
	for _, img := range images {
		_, err := tx.Exec(
			`INSERT INTO image_info (file_name, name, hash, chapter_id) VALUES (?, ?, ?, ?)`,
			fileName, img.Name, img.Hash, img.ChapterID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Images returns the recorded images of the named archive.
func (t *Tracker) Images(fileName string) ([]ImageInfo, error) {
	rows, err := t.db.Query(
		`SELECT name, hash, chapter_id FROM image_info WHERE file_name = ? ORDER BY name`,
		fileName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []ImageInfo
	for rows.Next() {
		var img ImageInfo
		if err := rows.Scan(&img.Name, &img.Hash, &img.ChapterID); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Files returns every tracked archive entry.
func (t *Tracker) Files() ([]FileInfo, error) {
	rows, err := t.db.Query(`SELECT name, chapter_id, path, completed FROM file_info ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileInfo
	for rows.Next() {
		var fi FileInfo
		if err := rows.Scan(&fi.Name, &fi.ChapterID, &fi.Path, &fi.Completed); err != nil {
			return nil, err
		}
		files = append(files, fi)
	}
	return files, rows.Err()
}

func (t *Tracker) Close() error {
	return t.db.Close()
}
