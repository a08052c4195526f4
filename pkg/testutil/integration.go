package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite provides a scratch directory shared by the tests of
// a suite.
type IntegrationTestSuite struct {
	suite.Suite
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "fls-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir

	s.T().Logf("Integration test suite started in %s", s.tempDir)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// TempDir returns the suite scratch directory.
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Path joins name onto the scratch directory.
func (s *IntegrationTestSuite) Path(name ...string) string {
	return filepath.Join(append([]string{s.tempDir}, name...)...)
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
