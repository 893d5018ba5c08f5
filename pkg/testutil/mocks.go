package testutil

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/malipo/malipo-backend/pkg/database"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// MockDB backs a database.DB with sqlmock, for tests that need driver
// behavior a real database will not produce on demand (specific pq
// error codes, connection failures).
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a mock-backed database handle.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}

	return &MockDB{
		DB:   database.Wrap(sqlx.NewDb(db, "postgres"), logger.New("test", "test")),
		Mock: mock,
	}
}

// Close releases the mock connection.
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery registers an expectation for a query containing the given
// fragment. The fragment is escaped, so callers pass plain SQL.
func (m *MockDB) ExpectQuery(fragment string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(fragment))
}

// ExpectExec registers an expectation for an exec statement containing
// the given fragment.
func (m *MockDB) ExpectExec(fragment string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(fragment))
}

// ExpectationsWereMet fails the test if any expectation went unmet.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()

	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}
