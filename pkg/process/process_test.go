package process

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/models"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog(filepath.Join(t.TempDir(), "processes.json"))
	require.NoError(t, c.Load())
	return c
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
}

type runnerFixture struct {
	svc         *Service
	base        string
	completions chan Completion
}

func newRunner(t *testing.T, catalog *Catalog) *runnerFixture {
	t.Helper()
	base := t.TempDir()
	for _, sub := range []string{"processes", "var", "log", "ca"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, sub), 0o755))
	}
	completions := make(chan Completion, 4)
	svc := NewService(Config{
		ProcessesDir: filepath.Join(base, "processes"),
		WorkDir:      filepath.Join(base, "var"),
		LogDir:       filepath.Join(base, "log"),
		RangeCADir:   filepath.Join(base, "ca"),
	}, catalog, func(c Completion) { completions <- c })
	return &runnerFixture{svc: svc, base: base, completions: completions}
}

func (f *runnerFixture) wait(t *testing.T, id string) models.ProcessResult {
	t.Helper()
	select {
	case c := <-f.completions:
		require.Equal(t, id, c.RequestID)
		return c.Result
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for process completion")
		return models.ProcessResult{}
	}
}

func TestCatalogDefaults(t *testing.T) {
	c := newTestCatalog(t)
	assert.Len(t, c.Processes(), 3)

	hello, ok := c.Find("hello-world")
	require.True(t, ok)
	assert.Equal(t, "<processes>/helo_world.sh", hello.Executable)
	assert.Equal(t, "root", hello.AccessRights.Owner.User)
	assert.Equal(t, "root", hello.AccessRights.Owner.Group)
	assert.Equal(t, models.RightExecute, hello.AccessRights.Mode.User)
	assert.Equal(t, models.AccessRight(0), hello.AccessRights.Mode.Other)

	assert.True(t, c.Contains("process-csr"))
	assert.True(t, c.Contains("process-report"))
}

func TestCatalogPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processes.json")
	c := NewCatalog(path)
	require.NoError(t, c.Load())

	owner := models.AccessOwner{User: "root", Group: "users"}
	_, err := c.UpdateAccessOwner("hello-world", owner)
	require.NoError(t, err)

	reloaded := NewCatalog(path)
	require.NoError(t, reloaded.Load())
	entry, ok := reloaded.Find("hello-world")
	require.True(t, ok)
	assert.Equal(t, owner, entry.AccessRights.Owner)
}

func TestCatalogAuthorizeUser(t *testing.T) {
	c := newTestCatalog(t)

	member := models.UserInfo{Name: "alice", GroupNames: []string{"users"}}
	admin := models.UserInfo{Name: "ops", GroupNames: []string{"root"}}

	assert.False(t, c.AuthorizeUser(member, "hello-world"))
	assert.True(t, c.AuthorizeUser(admin, "hello-world"))
	assert.False(t, c.AuthorizeUser(admin, "no-such-process"))

	mode := models.AccessMode{User: models.RightExecute, Group: models.RightExecute, Other: models.RightExecute}
	_, err := c.UpdateAccessMode("hello-world", mode)
	require.NoError(t, err)
	assert.True(t, c.AuthorizeUser(member, "hello-world"))
}

func TestCatalogUpdateUnknownName(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.UpdateAccessMode("no-such-process", models.AccessMode{User: models.RightExecute})
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))
}

func TestSubmitUnknownProcess(t *testing.T) {
	f := newRunner(t, newTestCatalog(t))
	_, err := f.svc.Submit(models.ProcessRequest{Name: "no-such-process"}, models.NewUser("alice"))
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))
}

func TestSubmitRunsScriptWithTemplatedArguments(t *testing.T) {
	f := newRunner(t, newTestCatalog(t))
	writeScript(t, filepath.Join(f.base, "processes"), "helo_world.sh", `echo "args: $@"`)

	id, err := f.svc.Submit(models.ProcessRequest{
		Name:           "hello-world",
		ArgumentValues: map[string]string{"value1": "one", "value2": "two"},
	}, models.NewUser("alice"))
	require.NoError(t, err)

	result := f.wait(t, id)
	assert.Equal(t, models.ErrorNone, result.ErrorType)
	assert.Contains(t, result.OutputBuffer, "args: --parameter1=one --parameter2=two --switch")

	// The run stays retrievable until the dispatcher finalizes it.
	assert.Equal(t, 1, f.svc.Pending())
	f.svc.Finalize(id)
	assert.Equal(t, 0, f.svc.Pending())

	stats := f.svc.Statistics()
	assert.Equal(t, uint64(1), stats["hello-worldStarted"])
	assert.Equal(t, uint64(1), stats["hello-worldFinished"])
}

func TestSubmitEnvironmentAndWorkingDirectory(t *testing.T) {
	f := newRunner(t, newTestCatalog(t))
	writeScript(t, filepath.Join(f.base, "processes"), "helo_world.sh",
		`echo "executor=$CLOUD_PROCESS_EXECUTOR owner=$CLOUD_PROCESS_OWNER"
echo "pwd=$(pwd)"
echo "log=$CLOUD_PROCESS_LOG_FILE"`)

	executor := models.UserInfo{Name: "alice", GroupNames: []string{"users", "audit"}}
	id, err := f.svc.Submit(models.ProcessRequest{Name: "hello-world"}, executor)
	require.NoError(t, err)

	result := f.wait(t, id)
	require.Equal(t, models.ErrorNone, result.ErrorType)
	assert.Contains(t, result.OutputBuffer, "executor=alice:users,audit owner=root:root")
	assert.Contains(t, result.OutputBuffer, "pwd="+filepath.Join(f.base, "var", "hello-world"))
	assert.Contains(t, result.OutputBuffer, "log="+filepath.Join(f.base, "log", "hello-world-alice.log"))
}

func TestSubmitNonZeroExit(t *testing.T) {
	f := newRunner(t, newTestCatalog(t))
	writeScript(t, filepath.Join(f.base, "processes"), "helo_world.sh",
		`echo "broken" >&2
exit 3`)

	id, err := f.svc.Submit(models.ProcessRequest{Name: "hello-world"}, models.NewUser("alice"))
	require.NoError(t, err)

	result := f.wait(t, id)
	assert.Equal(t, models.ErrorChildProcess, result.ErrorType)
	assert.Contains(t, result.ErrorBuffer, "broken")

	stats := f.svc.Statistics()
	assert.Equal(t, uint64(1), stats["hello-worldFinished"])
}

func TestSubmitMissingExecutable(t *testing.T) {
	f := newRunner(t, newTestCatalog(t))

	id, err := f.svc.Submit(models.ProcessRequest{Name: "hello-world"}, models.NewUser("alice"))
	require.NoError(t, err)

	result := f.wait(t, id)
	assert.Equal(t, models.ErrorChildProcess, result.ErrorType)
	assert.Equal(t, "Child process failed.", result.ErrorBuffer)

	stats := f.svc.Statistics()
	assert.Equal(t, uint64(1), stats["hello-worldErrored"])
}
