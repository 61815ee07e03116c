//go:build integration
// +build integration

package integration

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite drives the built one-assist binary through its
// REPL. The embedder runs in hash mode and the model URL points at a
// closed port, so every session is deterministic and offline.
type IntegrationTestSuite struct {
	suite.Suite
	binaryPath string
}

// SetupSuite builds the binary before running tests
func (s *IntegrationTestSuite) SetupSuite() {
	projectRoot, err := filepath.Abs(filepath.Join(".."))
	require.NoError(s.T(), err)

	s.T().Log("Building binary for integration tests...")
	buildCmd := exec.Command("go", "build", "-o", "one-assist-test", "./cmd/one-assist")
	buildCmd.Dir = projectRoot
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	require.NoError(s.T(), buildCmd.Run(), "Failed to build binary")

	s.binaryPath = filepath.Join(projectRoot, "one-assist-test")
}

// TearDownSuite cleans up the binary after all tests
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.binaryPath != "" {
		os.Remove(s.binaryPath)
	}
}

// session holds the per-run paths so tests can share state between runs
// when they want to.
type session struct {
	dbPath  string
	dataDir string
	servers string
}

func (s *IntegrationTestSuite) newSession() session {
	dir := s.T().TempDir()
	return session{
		dbPath:  filepath.Join(dir, "assistant.db"),
		dataDir: filepath.Join(dir, "indexes"),
		servers: filepath.Join(dir, "servers.json"),
	}
}

// runREPL feeds the lines to a fresh process and returns its stdout.
func (s *IntegrationTestSuite) runREPL(sess session, lines ...string) string {
	return s.run(sess, strings.Join(lines, "\n")+"\n")
}

func (s *IntegrationTestSuite) run(sess session, stdin string, extraArgs ...string) string {
	args := append([]string{
		"-db", sess.dbPath,
		"-data-dir", sess.dataDir,
		"-config", sess.servers,
	}, extraArgs...)

	cmd := exec.Command(s.binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"ONEASSIST_EMBEDDER=hash",
		"ONEASSIST_EMBED_DIM=64",
		"ONEASSIST_LLM_URL=http://127.0.0.1:9",
		"ONEASSIST_LOG=error",
	)
	cmd.Stdin = strings.NewReader(stdin)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	done := make(chan error, 1)
	require.NoError(s.T(), cmd.Start())
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		require.NoError(s.T(), err, "binary exited with failure; output:\n%s", out.String())
	case <-time.After(30 * time.Second):
		cmd.Process.Kill()
		s.T().Fatalf("binary did not exit; output:\n%s", out.String())
	}

	return out.String()
}

// TestVersionFlag tests the -version short circuit
func (s *IntegrationTestSuite) TestVersionFlag() {
	out, err := exec.Command(s.binaryPath, "-version").Output()
	require.NoError(s.T(), err)
	require.Equal(s.T(), "one-assist 0.1.0\n", string(out))
}

// TestRebuildFlag tests index rebuilding from the command line
func (s *IntegrationTestSuite) TestRebuildFlag() {
	sess := s.newSession()
	out := s.run(sess, "", "-rebuild")
	require.Contains(s.T(), out, "Indexes rebuilt: 4 tools, 0 messages.")

	_, err := os.Stat(filepath.Join(sess.dataDir, "tools.vec"))
	require.NoError(s.T(), err)
	_, err = os.Stat(filepath.Join(sess.dataDir, "messages.vec"))
	require.NoError(s.T(), err)
}

// TestHelpAndInvalidInput tests the REPL surface without any model
func (s *IntegrationTestSuite) TestHelpAndInvalidInput() {
	out := s.runREPL(s.newSession(), "help", "x", "exit")

	require.Contains(s.T(), out, "Local assistant ready.")
	require.Contains(s.T(), out, "Available commands:")
	require.Contains(s.T(), out, "Please enter at least 2 characters.")
	require.Contains(s.T(), out, "Goodbye!")
}

// TestConversationFlow tests a message turn end to end with the model
// offline
func (s *IntegrationTestSuite) TestConversationFlow() {
	out := s.runREPL(s.newSession(),
		"hello there my good friend",
		"history",
		"stats",
		"exit",
	)

	// With the model offline the plain turn degrades to the fixed line.
	require.Contains(s.T(), out, "The language model is not reachable right now")
	require.Contains(s.T(), out, "user: hello there my good friend")
	require.Contains(s.T(), out, "Conversations: 1")
	require.Contains(s.T(), out, "Goodbye!")
}

// TestSearchCommand tests catalog lookup through the REPL
func (s *IntegrationTestSuite) TestSearchCommand() {
	out := s.runREPL(s.newSession(), "search time", "exit")

	require.Contains(s.T(), out, "Matching tools:")
	require.Contains(s.T(), out, "current_time")
}

// TestPersistenceAcrossSessions tests that conversations and indexes
// survive a restart
func (s *IntegrationTestSuite) TestPersistenceAcrossSessions() {
	sess := s.newSession()

	s.runREPL(sess, "remembering the weather in berlin", "exit")

	_, err := os.Stat(filepath.Join(sess.dataDir, "messages.vec"))
	require.NoError(s.T(), err)

	out := s.runREPL(sess, "conversations", "exit")
	require.Contains(s.T(), out, "remembering the weather in berlin")
	require.Contains(s.T(), out, "ended")
}

// TestIntegrationSuite runs the integration test suite
func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
