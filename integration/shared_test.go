//go:build basic || database || integration

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// sharedRakingPath holds the path to a shared raking binary built once for all tests.
	sharedRakingPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// surveyCSV has 6 men and 4 women, 5 North and 5 South.
const surveyCSV = `id,gender,region,q1
1,M,North,Yes
2,M,South,No
3,M,North,Yes
4,M,South,Yes
5,M,North,No
6,M,South,Yes
7,F,North,No
8,F,South,Yes
9,F,North,Yes
10,F,South,No
`

const targetsYAML = `gender:
  M: 0.49
  F: 0.51
region:
  North: 0.4
  South: 0.6
`

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	code := m.Run()

	// Cleanup the shared binary after all tests
	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getRakingBinary returns the path to the raking binary, building it once if needed.
func getRakingBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "raking-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		rakingPath := filepath.Join(tempDir, "raking")
		buildCmd := exec.Command("go", "build", "-o", rakingPath, ".")
		buildCmd.Dir = ".." // Build from parent directory (project root)
		if err := buildCmd.Run(); err != nil {
			panic(fmt.Sprintf("failed to build raking: %v", err))
		}

		sharedRakingPath = rakingPath
	})

	return sharedRakingPath
}

// writeFixtures writes the survey table and target file into a fresh directory.
func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "survey.csv"), []byte(surveyCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "targets.yaml"), []byte(targetsYAML), 0o644))
	return dir
}

// runRakingCommand runs the binary in dir and returns its stdout.
func runRakingCommand(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getRakingBinary(), args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			t.Logf("Command failed: %s\nStderr: %s", cmd.String(), string(exitErr.Stderr))
		}
		return string(output), err
	}
	return string(output), nil
}
