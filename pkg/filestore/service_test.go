package filestore

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/directory"
	"github.com/rangelabs/rangecloud/pkg/models"
)

type fixture struct {
	svc         *Service
	dir         *directory.Directory
	store       string
	completions chan Completion
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	base := t.TempDir()
	if cfg.StoreDir == "" {
		cfg.StoreDir = filepath.Join(base, "store")
	}

	d := directory.New(filepath.Join(base, "users.json"))
	require.NoError(t, d.Load())
	require.NoError(t, d.AddUser(models.NewUser("alice")))
	require.NoError(t, d.AddUser(models.NewUser("bob")))

	completions := make(chan Completion, 16)
	svc := New(cfg, d, func(c Completion) { completions <- c })
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	return &fixture{svc: svc, dir: d, store: cfg.StoreDir, completions: completions}
}

// run submits a task and waits for its completion.
func (f *fixture) run(t *testing.T, taskType TaskType, executor string, obj *models.FileObject) *models.FileObject {
	t.Helper()
	reqID, err := f.svc.Submit(taskType, executor, obj)
	require.NoError(t, err)

	select {
	case c := <-f.completions:
		require.Equal(t, reqID, c.RequestID)
		return c.Object
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task completion")
		return nil
	}
}

func uploadObject(executor, path string, content []byte) *models.FileObject {
	return &models.FileObject{
		Info: models.FileInfo{
			ID:   uuid.NewString(),
			Path: path,
			AccessRights: models.AccessRights{
				Owner: models.AccessOwner{User: executor, Group: models.UsersGroupName},
				Mode:  models.AccessMode{User: models.RightRead | models.RightWrite, Group: models.RightRead},
			},
		},
		Content: content,
	}
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	content := []byte("hello")

	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "docs/readme.txt", content))
	require.Equal(t, models.ErrorNone, stored.ErrorType, string(stored.Content))

	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))
	sum := md5.Sum(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.MD5Checksum)
	assert.Equal(t, int64(len(content)), info.Size)

	// The blob exists on disk under the file id.
	blob, err := os.ReadFile(filepath.Join(f.store, info.ID))
	require.NoError(t, err)
	assert.Equal(t, content, blob)

	retrieved := f.run(t, TaskRetrieveFile, "alice", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	require.Equal(t, models.ErrorNone, retrieved.ErrorType)
	assert.Equal(t, content, retrieved.Content)
}

func TestStoreUnauthorizedProposedRights(t *testing.T) {
	f := newFixture(t, Config{})

	// bob proposes rights owned by alice with no access for himself.
	obj := uploadObject("alice", "docs/readme.txt", []byte("hello"))
	result := f.run(t, TaskStoreFile, "bob", obj)
	require.Equal(t, models.ErrorUnauthorized, result.ErrorType)

	list := f.run(t, TaskListFiles, "root", &models.FileObject{})
	assert.JSONEq(t, `{"files":[]}`, string(list.Content))
}

func TestRetrieveUnauthorizedForOther(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.dir.AddUser(models.UserInfo{Name: "outsider", GroupNames: []string{"guest"}}))

	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "docs/readme.txt", []byte("hello")))
	require.Equal(t, models.ErrorNone, stored.ErrorType)
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))

	// Other mask is 0: outsiders are rejected, users-group members pass.
	denied := f.run(t, TaskRetrieveFile, "outsider", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	assert.Equal(t, models.ErrorUnauthorized, denied.ErrorType)

	allowed := f.run(t, TaskRetrieveFile, "bob", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	assert.Equal(t, models.ErrorNone, allowed.ErrorType)
	assert.Equal(t, []byte("hello"), allowed.Content)
}

func TestMaxFileSize(t *testing.T) {
	f := newFixture(t, Config{MaxFileSize: 4})

	obj := uploadObject("alice", "docs/big.bin", []byte("hello"))
	result := f.run(t, TaskStoreFile, "alice", obj)
	require.Equal(t, models.ErrorInvalidInput, result.ErrorType)

	// No blob, no index entry.
	_, err := os.Stat(filepath.Join(f.store, obj.Info.ID))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, int64(0), f.svc.TotalSize())
}

func TestQuotaEnforcement(t *testing.T) {
	f := newFixture(t, Config{MaxStoreSize: 100})
	payload := make([]byte, 60)

	first := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.bin", payload))
	require.Equal(t, models.ErrorNone, first.ErrorType)

	second := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "b.bin", payload))
	require.Equal(t, models.ErrorInvalidInput, second.ErrorType)
	assert.Contains(t, string(second.Content), "full")

	var info models.FileInfo
	require.NoError(t, json.Unmarshal(first.Content, &info))
	removed := f.run(t, TaskRemoveFile, "alice", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	require.Equal(t, models.ErrorNone, removed.ErrorType)

	third := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "c.bin", payload))
	assert.Equal(t, models.ErrorNone, third.ErrorType)
}

func TestInvalidPaths(t *testing.T) {
	f := newFixture(t, Config{})
	for _, path := range []string{"/abs/path", "a/../b", ""} {
		obj := uploadObject("alice", path, []byte("x"))
		result := f.run(t, TaskStoreFile, "alice", obj)
		assert.Equal(t, models.ErrorInvalidInput, result.ErrorType, path)
	}
}

func TestUpdateFileAdjustsAccounting(t *testing.T) {
	f := newFixture(t, Config{})
	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("12345")))
	require.Equal(t, models.ErrorNone, stored.ErrorType)
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))
	require.Equal(t, int64(5), f.svc.TotalSize())

	updated := f.run(t, TaskUpdateFile, "alice", &models.FileObject{
		Info:    models.FileInfo{ID: info.ID, Path: "b.txt"},
		Content: []byte("1234567890"),
	})
	require.Equal(t, models.ErrorNone, updated.ErrorType)

	var after models.FileInfo
	require.NoError(t, json.Unmarshal(updated.Content, &after))
	assert.Equal(t, "b.txt", after.Path)
	assert.Equal(t, int64(10), after.Size)
	assert.Equal(t, int64(10), f.svc.TotalSize())
	assert.GreaterOrEqual(t, after.UpdatedAt, after.CreatedAt)
}

func TestUpdateAccessModeRequiresOwnership(t *testing.T) {
	f := newFixture(t, Config{})
	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("x")))
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))

	newMode := models.AccessMode{User: models.RightRead | models.RightWrite, Group: models.RightRead, Other: models.RightRead}

	// bob shares the group but does not own the file.
	denied := f.run(t, TaskUpdateAccessMode, "bob", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, AccessRights: models.AccessRights{Mode: newMode}},
	})
	assert.Equal(t, models.ErrorUnauthorized, denied.ErrorType)

	allowed := f.run(t, TaskUpdateAccessMode, "alice", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, AccessRights: models.AccessRights{Mode: newMode}},
	})
	require.Equal(t, models.ErrorNone, allowed.ErrorType)
	var after models.FileInfo
	require.NoError(t, json.Unmarshal(allowed.Content, &after))
	assert.Equal(t, newMode, after.AccessRights.Mode)
}

func TestUpdateAccessOwnerValidatesPrincipals(t *testing.T) {
	f := newFixture(t, Config{})
	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("x")))
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))

	unknown := f.run(t, TaskUpdateAccessOwner, "root", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, AccessRights: models.AccessRights{
			Owner: models.AccessOwner{User: "nobody", Group: "users"},
		}},
	})
	assert.Equal(t, models.ErrorInvalidInput, unknown.ErrorType)

	changed := f.run(t, TaskUpdateAccessOwner, "root", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, AccessRights: models.AccessRights{
			Owner: models.AccessOwner{User: "bob", Group: "users"},
		}},
	})
	require.Equal(t, models.ErrorNone, changed.ErrorType)
	var after models.FileInfo
	require.NoError(t, json.Unmarshal(changed.Content, &after))
	assert.Equal(t, "bob", after.AccessRights.Owner.User)
	// The mode survives an owner change.
	assert.Equal(t, info.AccessRights.Mode, after.AccessRights.Mode)
}

func TestUpdateTagsValidation(t *testing.T) {
	f := newFixture(t, Config{})
	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("x")))
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))

	tooMany := make([]string, models.MaxNumTags+1)
	for i := range tooMany {
		tooMany[i] = "tag"
	}
	rejected := f.run(t, TaskUpdateTags, "alice", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, Tags: tooMany},
	})
	assert.Equal(t, models.ErrorInvalidInput, rejected.ErrorType)

	rejected = f.run(t, TaskUpdateTags, "alice", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, Tags: []string{"bad tag"}},
	})
	assert.Equal(t, models.ErrorInvalidInput, rejected.ErrorType)

	accepted := f.run(t, TaskUpdateTags, "alice", &models.FileObject{
		Info: models.FileInfo{ID: info.ID, Tags: []string{"docs", "v1"}},
	})
	require.Equal(t, models.ErrorNone, accepted.ErrorType)
}

func TestRemoveAuthorizesBeforeUnregistering(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.dir.AddUser(models.UserInfo{Name: "outsider", GroupNames: []string{"guest"}}))

	stored := f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("x")))
	var info models.FileInfo
	require.NoError(t, json.Unmarshal(stored.Content, &info))

	denied := f.run(t, TaskRemoveFile, "outsider", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	require.Equal(t, models.ErrorUnauthorized, denied.ErrorType)

	// The entry survives the denied removal.
	still := f.run(t, TaskFileInfo, "alice", &models.FileObject{Info: models.FileInfo{ID: info.ID}})
	assert.Equal(t, models.ErrorNone, still.ErrorType)
}

func TestListFilesIsFilteredPerUser(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.dir.AddUser(models.UserInfo{Name: "outsider", GroupNames: []string{"guest"}}))

	f.run(t, TaskStoreFile, "alice", uploadObject("alice", "a.txt", []byte("x")))
	f.run(t, TaskStoreFile, "alice", uploadObject("alice", "b.txt", []byte("y")))

	var listing fileList

	mine := f.run(t, TaskListFiles, "alice", &models.FileObject{})
	require.NoError(t, json.Unmarshal(mine.Content, &listing))
	assert.Len(t, listing.Files, 2)

	other := f.run(t, TaskListFiles, "outsider", &models.FileObject{})
	require.NoError(t, json.Unmarshal(other.Content, &listing))
	assert.Empty(t, listing.Files)

	admin := f.run(t, TaskListFiles, "root", &models.FileObject{})
	require.NoError(t, json.Unmarshal(admin.Content, &listing))
	assert.Len(t, listing.Files, 2)
}

func TestIndexSurvivesRestart(t *testing.T) {
	base := t.TempDir()
	store := filepath.Join(base, "store")

	d := directory.New(filepath.Join(base, "users.json"))
	require.NoError(t, d.Load())
	require.NoError(t, d.AddUser(models.NewUser("alice")))

	completions := make(chan Completion, 4)
	svc := New(Config{StoreDir: store}, d, func(c Completion) { completions <- c })
	require.NoError(t, svc.Start())

	obj := uploadObject("alice", "a.txt", []byte("hello"))
	_, err := svc.Submit(TaskStoreFile, "alice", obj)
	require.NoError(t, err)
	stored := <-completions
	require.Equal(t, models.ErrorNone, stored.Object.ErrorType)
	svc.Stop()

	reborn := New(Config{StoreDir: store}, d, func(c Completion) { completions <- c })
	require.NoError(t, reborn.Start())
	defer reborn.Stop()

	assert.Equal(t, int64(5), reborn.TotalSize())
	_, err = reborn.Submit(TaskRetrieveFile, "alice", &models.FileObject{Info: models.FileInfo{ID: stored.Object.Info.ID}})
	require.NoError(t, err)
	retrieved := <-completions
	require.Equal(t, models.ErrorNone, retrieved.Object.ErrorType)
	assert.Equal(t, []byte("hello"), retrieved.Object.Content)
}

func TestMissingFileIsInvalidInput(t *testing.T) {
	f := newFixture(t, Config{})
	missing := &models.FileObject{Info: models.FileInfo{ID: uuid.NewString()}}
	result := f.run(t, TaskFileInfo, "alice", missing)
	assert.Equal(t, models.ErrorInvalidInput, result.ErrorType)
}

func TestSubmitAfterStopFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.Stop()
	_, err := f.svc.Submit(TaskListFiles, "alice", &models.FileObject{})
	assert.Error(t, err)
}

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.txt")
	ix := NewIndex(path)
	require.NoError(t, ix.Load())

	a := uploadObject("alice", "a.txt", nil).Info
	a.Size = 3
	b := uploadObject("alice", "b.txt", nil).Info
	b.Size = 7
	ix.Register(a)
	ix.Register(b)
	require.NoError(t, ix.Write())

	reloaded := NewIndex(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, ix.All(), reloaded.All())
	assert.Equal(t, int64(10), reloaded.TotalSize())
}
