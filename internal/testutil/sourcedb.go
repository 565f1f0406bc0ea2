package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	// Test source databases are SQLite files.
	_ "github.com/mattn/go-sqlite3"
)

// Person is one row in a test personnel table.
type Person struct {
	CPF        string
	Name       string
	Classifier string
	State      string
}

// NewSourceDB creates a SQLite personnel database seeded with the given
// people and returns its DSN for use with source.NewDBAdapter. The file lives
// in the test's temp dir and is deleted automatically.
func NewSourceDB(t *testing.T, people ...Person) string {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "personnel.db")

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`
		CREATE TABLE pessoal (
			cpf TEXT PRIMARY KEY,
			nome TEXT,
			classe TEXT,
			situacao TEXT
		)`); err != nil {
		t.Fatalf("failed to create personnel table: %v", err)
	}

	SeedPeople(t, dsn, people...)

	return dsn
}

// SeedPeople inserts or replaces rows in an existing test personnel database.
func SeedPeople(t *testing.T, dsn string, people ...Person) {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, p := range people {
		if _, err := db.Exec(`
			INSERT OR REPLACE INTO pessoal (cpf, nome, classe, situacao)
			VALUES (?, ?, ?, ?)`,
			p.CPF, p.Name, p.Classifier, p.State,
		); err != nil {
			t.Fatalf("failed to seed person %s: %v", p.CPF, err)
		}
	}
}

// RemovePerson deletes a row from a test personnel database.
func RemovePerson(t *testing.T, dsn, cpf string) {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`DELETE FROM pessoal WHERE cpf = ?`, cpf); err != nil {
		t.Fatalf("failed to remove person %s: %v", cpf, err)
	}
}
