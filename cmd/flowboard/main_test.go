package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowboard/internal/devserver"
)

type cli struct {
	t      *testing.T
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := devserver.NewServer(devserver.NewMemory(), devserver.Options{JWTSecret: []byte("cli")})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	dir := t.TempDir()
	cfg := fmt.Sprintf(`
api:
  base_url: %q
  token_file: %q
execution:
  poll_interval: 10ms
notices:
  duration: 1s
log:
  level: error
`, ts.URL, filepath.Join(dir, "token"))
	path := filepath.Join(dir, "flowboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &cli{t: t, config: path}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", c.config}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "flowboard %v", args)
	return out
}

func TestCLI_RequiresLogin(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("list")
	assert.ErrorContains(t, err, "not logged in")
}

func TestCLI_BuildAndRunWorkflow(t *testing.T) {
	c := newCLI(t)

	assert.Contains(t, c.must("register", "--email", "cli@example.com", "--password", "pw"), "Logged in as cli@example.com")
	assert.Contains(t, c.must("create", "demo"), "Created workflow 1 (demo)")

	out := c.must("add-node", "1", "--type", "text_input", "--x", "10", "--y", "20")
	assert.Contains(t, out, "Added text_input node dndnode_0 at (10, 20)")
	out = c.must("add-node", "1", "--type", "output", "--x", "10", "--y", "120", "--zoom", "2")
	assert.Contains(t, out, "dndnode_1 at (5, 60)")

	assert.Contains(t, c.must("connect", "1", "dndnode_0", "dndnode_1"), "Connected dndnode_0 -> dndnode_1")
	assert.Contains(t, c.must("edit-node", "1", "dndnode_0", "--text", "hello"), "Updated dndnode_0")

	out = c.must("show", "1")
	assert.Contains(t, out, "dndnode_0")
	assert.Contains(t, out, "dndnode_0 -> dndnode_1")

	out = c.must("run", "1")
	assert.Contains(t, out, "Execution 1 started")
	assert.Contains(t, out, "Execution 1 completed")
	assert.Contains(t, out, "hello")

	out = c.must("list", "--runs")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "COMPLETED")

	assert.Contains(t, c.must("remove-node", "1", "dndnode_1"), "Removed dndnode_1")
	assert.NotContains(t, c.must("show", "1"), "->")

	assert.Contains(t, c.must("delete", "1"), "Deleted workflow 1")
	assert.Contains(t, c.must("logout"), "Logged out")
	_, err := c.run("list")
	assert.ErrorContains(t, err, "not logged in")
}

func TestCLI_RunFailureExitsNonZero(t *testing.T) {
	c := newCLI(t)
	c.must("register", "--email", "f@example.com", "--password", "pw")
	c.must("create", "broken")
	c.must("add-node", "1", "--type", "prompt")

	out, err := c.run("run", "1")
	assert.ErrorContains(t, err, "execution 1 failed")
	assert.Contains(t, out, "non-empty string")
}

func TestCLI_EditNodeNeedsAChange(t *testing.T) {
	c := newCLI(t)
	c.must("register", "--email", "e@example.com", "--password", "pw")
	_, err := c.run("edit-node", "1", "n1")
	assert.ErrorContains(t, err, "nothing to change")
}

func TestCLI_UnknownNodeType(t *testing.T) {
	c := newCLI(t)
	c.must("register", "--email", "u@example.com", "--password", "pw")
	c.must("create", "x")
	_, err := c.run("add-node", "1", "--type", "spaceship")
	assert.ErrorContains(t, err, "unknown node type")
}
