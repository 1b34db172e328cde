package mdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Database is a flat, read-only list of records, one per line of the
// source file. Blank lines are skipped so no record can be mistaken for
// the end-of-result sentinel.
type Database struct {
	records []string
}

// NewDatabase builds a database from records. Records containing line
// terminators are split at them.
func NewDatabase(records ...string) *Database {
	db := &Database{}
	for _, rec := range records {
		for _, line := range strings.Split(rec, "\n") {
			db.add(line)
		}
	}
	return db
}

// LoadDatabase reads one record per line from r.
func LoadDatabase(r io.Reader) (*Database, error) {
	db := &Database{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), DefaultMaxRowLength)
	for sc.Scan() {
		db.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("load mdb records: %w", err)
	}
	return db, nil
}

// OpenDatabase loads the record file at path.
func OpenDatabase(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDatabase(f)
}

func (db *Database) add(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	db.records = append(db.records, line)
}

// Len returns the number of records.
func (db *Database) Len() int {
	return len(db.records)
}

// Lookup returns every record containing key, formatted with its 1-based
// record number. An empty key matches everything.
func (db *Database) Lookup(key string) []string {
	var rows []string
	for i, rec := range db.records {
		if strings.Contains(rec, key) {
			rows = append(rows, fmt.Sprintf("%4d: %s", i+1, rec))
		}
	}
	return rows
}
