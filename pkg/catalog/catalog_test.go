package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/models"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New(filepath.Join(t.TempDir(), "actions.json"))
	require.NoError(t, c.Load())
	return c
}

func TestLoadBuildsDefaultPolicy(t *testing.T) {
	c := newTestCatalog(t)
	assert.Len(t, c.Actions(), len(AllActionNames))

	// Administrative actions are owned root:root, mode x--x----.
	stop, ok := c.Find(models.ActionStop)
	require.True(t, ok)
	assert.Equal(t, "root", stop.AccessRights.Owner.User)
	assert.Equal(t, "root", stop.AccessRights.Owner.Group)
	assert.Equal(t, models.RightExecute, stop.AccessRights.Mode.User)
	assert.Equal(t, models.RightExecute, stop.AccessRights.Mode.Group)
	assert.Equal(t, models.AccessRight(0), stop.AccessRights.Mode.Other)

	// Non-administrative actions default to group users.
	upload, ok := c.Find(models.ActionFileUpload)
	require.True(t, ok)
	assert.Equal(t, "users", upload.AccessRights.Owner.Group)

	// Public set also grants execute to other.
	test, ok := c.Find(models.ActionTest)
	require.True(t, ok)
	assert.Equal(t, models.RightExecute, test.AccessRights.Mode.Other)
}

func TestLoadMergePreservesExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	c := New(path)
	require.NoError(t, c.Load())

	custom := models.AccessOwner{User: "root", Group: "guest"}
	_, err := c.UpdateAccessOwner(models.ActionFileList, custom)
	require.NoError(t, err)

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	entry, ok := reloaded.Find(models.ActionFileList)
	require.True(t, ok)
	assert.Equal(t, custom, entry.AccessRights.Owner)
	assert.Len(t, reloaded.Actions(), len(AllActionNames))
}

func TestAuthorizeUser(t *testing.T) {
	c := newTestCatalog(t)

	member := models.UserInfo{Name: "alice", GroupNames: []string{"users"}}
	guest := models.UserInfo{Name: "guest", GroupNames: []string{"guest"}}
	admin := models.UserInfo{Name: "ops", GroupNames: []string{"root"}}

	assert.True(t, c.AuthorizeUser(member, models.ActionFileUpload))
	assert.False(t, c.AuthorizeUser(guest, models.ActionFileUpload))
	assert.True(t, c.AuthorizeUser(guest, models.ActionTest))
	assert.True(t, c.AuthorizeUser(guest, models.ActionFileDownload))
	assert.False(t, c.AuthorizeUser(member, models.ActionStop))
	assert.True(t, c.AuthorizeUser(admin, models.ActionStop))
	assert.False(t, c.AuthorizeUser(member, "no.such.action"))
}

func TestUpdateAccessMode(t *testing.T) {
	c := newTestCatalog(t)

	mode := models.AccessMode{User: models.RightExecute, Group: models.RightExecute, Other: models.RightExecute}
	entry, err := c.UpdateAccessMode(models.ActionFileUpload, mode)
	require.NoError(t, err)
	assert.Equal(t, mode, entry.AccessRights.Mode)

	_, err = c.UpdateAccessMode(models.ActionFileUpload, models.AccessMode{User: 8})
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))

	_, err = c.UpdateAccessMode("no.such.action", mode)
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))
}

func TestStatistics(t *testing.T) {
	c := newTestCatalog(t)
	c.RecordInvocation(models.ActionTest)
	c.RecordInvocation(models.ActionTest)

	stats := c.Statistics()
	assert.Equal(t, len(AllActionNames), stats["actions"])
	assert.Equal(t, uint64(2), stats[models.ActionTest])
}
