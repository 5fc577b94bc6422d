package testutil

import (
	"context"
	"os"

	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun"
)

// DBSuite provides a migrated Postgres database per suite.
// Embed this in your test suite to get:
//   - Automatic database setup/teardown per suite
//   - Empty hrm tables at the start of every test
//
// The suite is skipped when no database is reachable, unless
// HRM_REQUIRE_TEST_DB is set.
//
// Usage:
//
//	type RepositorySuite struct {
//	    testutil.DBSuite
//	}
//
//	func TestRepositorySuite(t *testing.T) {
//	    suite.Run(t, new(RepositorySuite))
//	}
type DBSuite struct {
	suite.Suite
	TestDB *TestDB
	Ctx    context.Context

	// dbSuffix is used to create unique database names
	dbSuffix string
}

// SetDBSuffix sets the database name suffix. Call this in your suite's
// SetupSuite before calling DBSuite.SetupSuite.
func (s *DBSuite) SetDBSuffix(suffix string) {
	s.dbSuffix = suffix
}

// SetupSuite creates the test database.
// If you override this, call s.DBSuite.SetupSuite() first.
func (s *DBSuite) SetupSuite() {
	s.Ctx = context.Background()

	suffix := s.dbSuffix
	if suffix == "" {
		suffix = "test"
	}

	testDB, err := SetupTestDB(s.Ctx, suffix)
	if err != nil {
		if os.Getenv("HRM_REQUIRE_TEST_DB") != "" {
			s.Require().NoError(err, "Failed to setup test database")
		}
		s.T().Skipf("Skipping database tests: %v", err)
	}
	s.TestDB = testDB
}

// TearDownSuite closes the test database.
func (s *DBSuite) TearDownSuite() {
	if s.TestDB != nil {
		s.TestDB.Close()
	}
}

// SetupTest empties the tables. Tests in a suite share the database, so
// concurrency tests see real row locks between connections.
func (s *DBSuite) SetupTest() {
	s.Require().NoError(TruncateTables(s.Ctx, s.TestDB.DB))
}

// DB returns the suite's database.
func (s *DBSuite) DB() bun.IDB {
	return s.TestDB.DB
}
