// Package directory implements the user/group/token identity substrate.
//
// The directory is the authority for who exists, which groups they carry,
// and which one-shot bearer tokens are outstanding. Every mutation is
// persisted to a single JSON document; token validation is single-shot
// and consumes the token whether or not it validates.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// document is the on-disk shape of the directory.
type document struct {
	Users  []models.UserInfo  `json:"users"`
	Groups []models.GroupInfo `json:"groups"`
	Tokens []models.AuthToken `json:"tokens"`
}

// Directory holds users, groups and tokens, mirrored to a JSON file on
// every mutation. Safe for concurrent use: token validation is invoked
// from listener goroutines while admin actions arrive from the
// dispatcher.
type Directory struct {
	mu   sync.Mutex
	path string
	doc  document

	// OnUserChanged, when set, is invoked (outside the lock) for every
	// user whose membership was rewritten by a group-removal cascade.
	OnUserChanged func(models.UserInfo)
}

// New creates a directory persisted at path. Call Load before use.
func New(path string) *Directory {
	return &Directory{path: path}
}

// Load reads the directory document from disk. A missing file seeds the
// reserved principals (root, guest and the root/users/guest groups) and
// writes the seed out.
func (d *Directory) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		d.doc = document{
			Users: []models.UserInfo{
				{Name: models.RootUserName, GroupNames: []string{models.RootGroupName}},
				{Name: models.GuestUserName, GroupNames: []string{models.GuestGroupName}},
			},
			Groups: []models.GroupInfo{
				{Name: models.RootGroupName},
				{Name: models.GuestGroupName},
				{Name: models.UsersGroupName},
			},
		}
		if err := d.writeLocked(); err != nil {
			return fmt.Errorf("failed to seed directory: %w", err)
		}
		logger.Info("Directory seeded", "path", d.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read directory file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse directory file %q: %w", d.path, err)
	}
	d.doc = doc
	logger.Info("Directory loaded",
		"path", d.path,
		"users", len(doc.Users),
		"groups", len(doc.Groups),
		"tokens", len(doc.Tokens),
	)
	return nil
}

// Save rewrites the directory document. Called by the server on shutdown;
// mutations already persist eagerly.
func (d *Directory) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked()
}

// writeLocked persists the document atomically (write-to-temp + rename).
func (d *Directory) writeLocked() error {
	raw, err := json.MarshalIndent(d.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create directory temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write directory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close directory temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace directory file: %w", err)
	}
	return nil
}

// persistLocked writes the document, logging failures instead of
// propagating them: the in-memory state is already mutated and the next
// mutation retries the write.
func (d *Directory) persistLocked() {
	if err := d.writeLocked(); err != nil {
		logger.Error("Directory persistence failed", "path", d.path, "error", err)
	}
}

func invalidInput(format string, args ...any) *models.ServiceError {
	return models.NewServiceError(models.ErrorInvalidInput, fmt.Sprintf(format, args...))
}

func (d *Directory) findUserLocked(name string) (int, bool) {
	for i, u := range d.doc.Users {
		if u.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (d *Directory) findGroupLocked(name string) (int, bool) {
	for i, g := range d.doc.Groups {
		if g.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ContainsUser reports whether a user with the given name exists.
func (d *Directory) ContainsUser(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.findUserLocked(name)
	return ok
}

// FindUser returns the named user.
func (d *Directory) FindUser(name string) (models.UserInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.findUserLocked(name); ok {
		return d.doc.Users[i], true
	}
	return models.UserInfo{}, false
}

// ContainsGroup reports whether a group with the given name exists.
func (d *Directory) ContainsGroup(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.findGroupLocked(name)
	return ok
}

// FindGroup returns the named group.
func (d *Directory) FindGroup(name string) (models.GroupInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.findGroupLocked(name); ok {
		return d.doc.Groups[i], true
	}
	return models.GroupInfo{}, false
}

// Users returns a snapshot of all users.
func (d *Directory) Users() []models.UserInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.UserInfo, len(d.doc.Users))
	copy(out, d.doc.Users)
	return out
}

// Groups returns a snapshot of all groups.
func (d *Directory) Groups() []models.GroupInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.GroupInfo, len(d.doc.Groups))
	copy(out, d.doc.Groups)
	return out
}

// checkUserLocked validates a user record against the name grammar and
// the existing groups.
func (d *Directory) checkUserLocked(u models.UserInfo) error {
	if err := u.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	for _, g := range u.GroupNames {
		if _, ok := d.findGroupLocked(g); !ok {
			return invalidInput("unknown group %q", g)
		}
	}
	return nil
}

// AddUser inserts a new user. Fails with InvalidInput on an invalid
// name, a duplicate, or an unknown group reference.
func (d *Directory) AddUser(u models.UserInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkUserLocked(u); err != nil {
		return err
	}
	if _, ok := d.findUserLocked(u.Name); ok {
		return invalidInput("user %q already exists", u.Name)
	}
	d.doc.Users = append(d.doc.Users, u)
	d.persistLocked()
	return nil
}

// SetUser replaces the user stored under name with u.
func (d *Directory) SetUser(name string, u models.UserInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkUserLocked(u); err != nil {
		return err
	}
	i, ok := d.findUserLocked(name)
	if !ok {
		return invalidInput("user %q does not exist", name)
	}
	d.doc.Users[i] = u
	d.persistLocked()
	return nil
}

// RemoveUser deletes the named user.
func (d *Directory) RemoveUser(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.findUserLocked(name)
	if !ok {
		return invalidInput("user %q does not exist", name)
	}
	d.doc.Users = append(d.doc.Users[:i], d.doc.Users[i+1:]...)
	d.persistLocked()
	return nil
}

// AddGroup inserts a new group.
func (d *Directory) AddGroup(g models.GroupInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := g.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	if _, ok := d.findGroupLocked(g.Name); ok {
		return invalidInput("group %q already exists", g.Name)
	}
	d.doc.Groups = append(d.doc.Groups, g)
	d.persistLocked()
	return nil
}

// SetGroup replaces the group stored under name with g.
func (d *Directory) SetGroup(name string, g models.GroupInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := g.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	i, ok := d.findGroupLocked(name)
	if !ok {
		return invalidInput("group %q does not exist", name)
	}
	d.doc.Groups[i] = g
	d.persistLocked()
	return nil
}

// RemoveGroup deletes the named group and cascades the removal through
// every user's membership list, notifying OnUserChanged per affected
// user.
func (d *Directory) RemoveGroup(name string) error {
	d.mu.Lock()
	i, ok := d.findGroupLocked(name)
	if !ok {
		d.mu.Unlock()
		return invalidInput("group %q does not exist", name)
	}
	d.doc.Groups = append(d.doc.Groups[:i], d.doc.Groups[i+1:]...)

	var changed []models.UserInfo
	for ui := range d.doc.Users {
		u := &d.doc.Users[ui]
		kept := u.GroupNames[:0]
		dropped := false
		for _, g := range u.GroupNames {
			if g == name {
				dropped = true
				continue
			}
			kept = append(kept, g)
		}
		if dropped {
			u.GroupNames = kept
			changed = append(changed, *u)
		}
	}
	d.persistLocked()
	callback := d.OnUserChanged
	d.mu.Unlock()

	if callback != nil {
		for _, u := range changed {
			callback(u)
		}
	}
	return nil
}

// Tokens

// ContainsToken reports whether a token with the given resource and
// content exists.
func (d *Directory) ContainsToken(resourceName, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.findTokenByContentLocked(resourceName, content)
	return ok
}

// FindToken returns the token with the given id.
func (d *Directory) FindToken(id string) (models.AuthToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.doc.Tokens {
		if t.ID == id {
			return t, true
		}
	}
	return models.AuthToken{}, false
}

// TokensFor returns all tokens bound to the given resource name.
func (d *Directory) TokensFor(resourceName string) []models.AuthToken {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.AuthToken
	for _, t := range d.doc.Tokens {
		if t.ResourceName == resourceName {
			out = append(out, t)
		}
	}
	return out
}

func (d *Directory) findTokenByContentLocked(resourceName, content string) (int, bool) {
	for i, t := range d.doc.Tokens {
		if t.ResourceName == resourceName && t.Content == content {
			return i, true
		}
	}
	return -1, false
}

// AddToken inserts a new token. Duplicate ids and duplicate
// (resource, content) pairs are rejected.
func (d *Directory) AddToken(t models.AuthToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := t.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	for _, existing := range d.doc.Tokens {
		if existing.ID == t.ID {
			return invalidInput("token %s already exists", t.ID)
		}
	}
	if _, ok := d.findTokenByContentLocked(t.ResourceName, t.Content); ok {
		return invalidInput("token for %q with the same content already exists", t.ResourceName)
	}
	d.doc.Tokens = append(d.doc.Tokens, t)
	d.persistLocked()
	return nil
}

// RemoveToken deletes the token with the given id.
func (d *Directory) RemoveToken(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range d.doc.Tokens {
		if t.ID == id {
			d.doc.Tokens = append(d.doc.Tokens[:i], d.doc.Tokens[i+1:]...)
			d.persistLocked()
			return nil
		}
	}
	return invalidInput("token %s does not exist", id)
}

// ValidateToken is the single-shot bearer check. It returns true iff a
// token with matching (resource, content) exists and is still within its
// validity window. The token is removed in every case, so a credential
// can be probed at most once.
func (d *Directory) ValidateToken(resourceName, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.findTokenByContentLocked(resourceName, content)
	if !ok {
		return false
	}
	valid := d.doc.Tokens[i].IsValidAt(time.Now())
	d.doc.Tokens = append(d.doc.Tokens[:i], d.doc.Tokens[i+1:]...)
	d.persistLocked()
	return valid
}

// AuthorizeUserAccess applies the shared access decision for a user
// looked up by name. Unknown users are denied.
func (d *Directory) AuthorizeUserAccess(userName string, rights models.AccessRights, requested models.AccessRight) bool {
	u, ok := d.FindUser(userName)
	if !ok {
		return false
	}
	return models.Authorize(u, rights, requested)
}

// Statistics returns the directory's counters.
func (d *Directory) Statistics() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"service": "userManager",
		"users":   len(d.doc.Users),
		"groups":  len(d.doc.Groups),
		"tokens":  len(d.doc.Tokens),
	}
}
