package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureReadOnly(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		unsafe bool
	}{
		{"plain select", "SELECT * FROM treatments WHERE patient_id = 143", false},
		{"lowercase select", "select name from patients limit 10", false},
		{"cte", "WITH recent AS (SELECT * FROM visits) SELECT * FROM recent", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"leading whitespace", "   \n SELECT 1", false},
		{"column named updated_at", "SELECT updated_at FROM visits", false},
		{"offset is not set", "SELECT id FROM visits LIMIT 10 OFFSET 5", false},
		{"insert", "INSERT INTO patients VALUES (1)", true},
		{"lowercase delete", "delete from patients", true},
		{"update", "UPDATE patients SET name = 'x'", true},
		{"drop", "DROP TABLE patients", true},
		{"alter", "ALTER TABLE patients ADD COLUMN x INT", true},
		{"truncate", "TRUNCATE TABLE visits", true},
		{"select hiding a delete", "SELECT 1; DELETE FROM patients", true},
		{"stacked statements", "SELECT 1; SELECT 2", true},
		{"write behind comment", "-- harmless\nDROP TABLE patients", true},
		{"empty", "   ", true},
		{"pragma", "PRAGMA table_info(patients)", true},
		{"not a select", "SHOW TABLES", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureReadOnly(tt.query)
			if tt.unsafe {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsafeStatement)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureIdentifier(t *testing.T) {
	assert.NoError(t, ensureIdentifier("treatments"))
	assert.NoError(t, ensureIdentifier("patient_visits_2024"))
	assert.ErrorIs(t, ensureIdentifier("patients; DROP TABLE x"), ErrBadIdentifier)
	assert.ErrorIs(t, ensureIdentifier("`patients`"), ErrBadIdentifier)
	assert.ErrorIs(t, ensureIdentifier(""), ErrBadIdentifier)
}
