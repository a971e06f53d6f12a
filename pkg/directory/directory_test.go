package directory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/models"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d := New(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, d.Load())
	return d
}

func TestLoadSeedsReservedPrincipals(t *testing.T) {
	d := newTestDirectory(t)

	root, ok := d.FindUser("root")
	require.True(t, ok)
	assert.Equal(t, []string{"root"}, root.GroupNames)

	guest, ok := d.FindUser("guest")
	require.True(t, ok)
	assert.Equal(t, []string{"guest"}, guest.GroupNames)

	for _, g := range []string{"root", "users", "guest"} {
		assert.True(t, d.ContainsGroup(g), g)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	d := New(path)
	require.NoError(t, d.Load())
	require.NoError(t, d.AddUser(models.NewUser("alice")))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, d.Users(), reloaded.Users())
	assert.Equal(t, d.Groups(), reloaded.Groups())
}

func TestAddUser(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.AddUser(models.NewUser("alice")))
	assert.True(t, d.ContainsUser("alice"))

	err := d.AddUser(models.NewUser("alice"))
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))

	assert.Error(t, d.AddUser(models.UserInfo{Name: "bad name"}))
	assert.Error(t, d.AddUser(models.UserInfo{Name: "bob", GroupNames: []string{"missing"}}))
}

func TestSetUser(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.AddUser(models.NewUser("alice")))
	require.NoError(t, d.AddGroup(models.GroupInfo{Name: "ops"}))

	require.NoError(t, d.SetUser("alice", models.UserInfo{Name: "alice", GroupNames: []string{"users", "ops"}}))
	u, ok := d.FindUser("alice")
	require.True(t, ok)
	assert.Equal(t, []string{"users", "ops"}, u.GroupNames)

	assert.Error(t, d.SetUser("nobody", models.NewUser("nobody")))
}

func TestRemoveUser(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.AddUser(models.NewUser("alice")))

	require.NoError(t, d.RemoveUser("alice"))
	assert.False(t, d.ContainsUser("alice"))

	err := d.RemoveUser("alice")
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))

	// Reserved principals are only guaranteed by the seed; removal is
	// an administrative decision the directory does not second-guess.
	require.NoError(t, d.RemoveUser(models.RootUserName))
	assert.False(t, d.ContainsUser(models.RootUserName))
	require.NoError(t, d.RemoveGroup(models.RootGroupName))
	assert.False(t, d.ContainsGroup(models.RootGroupName))
}

func TestRemoveGroupCascade(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.AddGroup(models.GroupInfo{Name: "g1"}))
	require.NoError(t, d.AddUser(models.UserInfo{Name: "u1", GroupNames: []string{"users", "g1"}}))

	var notified []string
	d.OnUserChanged = func(u models.UserInfo) { notified = append(notified, u.Name) }

	require.NoError(t, d.RemoveGroup("g1"))
	assert.False(t, d.ContainsGroup("g1"))

	u, ok := d.FindUser("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"users"}, u.GroupNames)
	assert.Equal(t, []string{"u1"}, notified)
}

func TestTokenSingleShot(t *testing.T) {
	d := newTestDirectory(t)
	tok, err := models.NewAuthToken("alice", time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, d.AddToken(tok))

	assert.True(t, d.ValidateToken("alice", tok.Content))
	// Consumed: the same credential never validates twice.
	assert.False(t, d.ValidateToken("alice", tok.Content))
	assert.False(t, d.ContainsToken("alice", tok.Content))
}

func TestTokenConsumedOnFailedValidation(t *testing.T) {
	d := newTestDirectory(t)
	expired, err := models.NewAuthToken("alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, d.AddToken(expired))

	assert.False(t, d.ValidateToken("alice", expired.Content))
	assert.False(t, d.ContainsToken("alice", expired.Content))
}

func TestAddTokenDuplicates(t *testing.T) {
	d := newTestDirectory(t)
	tok, err := models.NewAuthToken("alice", time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, d.AddToken(tok))

	assert.Error(t, d.AddToken(tok))

	dup := tok
	dup.ID = "11111111-1111-4111-8111-111111111111"
	assert.Error(t, d.AddToken(dup))
}

func TestRemoveToken(t *testing.T) {
	d := newTestDirectory(t)
	tok, err := models.NewAuthToken("alice", time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, d.AddToken(tok))

	require.NoError(t, d.RemoveToken(tok.ID))
	assert.Error(t, d.RemoveToken(tok.ID))
}

func TestPersistedDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	d := New(path)
	require.NoError(t, d.Load())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "users")
	assert.Contains(t, doc, "groups")
	assert.Contains(t, doc, "tokens")
}

func TestStatistics(t *testing.T) {
	d := newTestDirectory(t)
	stats := d.Statistics()
	assert.Equal(t, 2, stats["users"])
	assert.Equal(t, 3, stats["groups"])
	assert.Equal(t, 0, stats["tokens"])
}
