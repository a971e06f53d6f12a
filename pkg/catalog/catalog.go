// Package catalog implements the action catalog: the persisted mapping
// from each action name to the access rights required to execute it.
//
// The catalog is confined to the dispatcher goroutine; it needs no
// internal locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// document is the on-disk shape of the catalog.
type document struct {
	Actions []models.ActionInfo `json:"actions"`
}

// Catalog holds the per-action access rights and a per-action
// invocation counter.
type Catalog struct {
	path        string
	entries     []models.ActionInfo
	invocations map[string]uint64
}

// New creates a catalog persisted at path. Call Load before use.
func New(path string) *Catalog {
	return &Catalog{path: path, invocations: make(map[string]uint64)}
}

// administrative actions get group root in the default policy; everyone
// else gets group users.
var administrativeActions = map[string]bool{
	models.ActionFileUpdateAccessOwner:    true,
	models.ActionStop:                     true,
	models.ActionStatistics:               true,
	models.ActionProcess:                  true,
	models.ActionUserAdd:                  true,
	models.ActionUserUpdate:               true,
	models.ActionUserRemove:               true,
	models.ActionGroupAdd:                 true,
	models.ActionGroupRemove:              true,
	models.ActionActionUpdateAccessOwner:  true,
	models.ActionActionUpdateAccessMode:   true,
	models.ActionProcessUpdateAccessOwner: true,
	models.ActionProcessUpdateAccessMode:  true,
}

// publicActions additionally grant execute to "other" in the default
// policy.
var publicActions = map[string]bool{
	models.ActionTest:         true,
	models.ActionFileList:     true,
	models.ActionFileInfo:     true,
	models.ActionFileDownload: true,
	models.ActionUserRegister: true,
	models.ActionProcess:      true,
	models.ActionReportSubmit: true,
}

// AllActionNames is the closed action namespace, in catalog order.
var AllActionNames = []string{
	models.ActionTest,
	models.ActionFileList,
	models.ActionFileInfo,
	models.ActionFileUpload,
	models.ActionFileUpdate,
	models.ActionFileUpdateAccessOwner,
	models.ActionFileUpdateAccessMode,
	models.ActionFileUpdateVersion,
	models.ActionFileUpdateTags,
	models.ActionFileDownload,
	models.ActionFileRemove,
	models.ActionUserList,
	models.ActionUserInfo,
	models.ActionUserAdd,
	models.ActionUserUpdate,
	models.ActionUserRemove,
	models.ActionUserRegister,
	models.ActionUserTokensList,
	models.ActionUserTokenGenerate,
	models.ActionUserTokenRemove,
	models.ActionGroupList,
	models.ActionGroupInfo,
	models.ActionGroupAdd,
	models.ActionGroupRemove,
	models.ActionActionList,
	models.ActionActionUpdateAccessOwner,
	models.ActionActionUpdateAccessMode,
	models.ActionProcessList,
	models.ActionProcess,
	models.ActionProcessUpdateAccessOwner,
	models.ActionProcessUpdateAccessMode,
	models.ActionStatistics,
	models.ActionStop,
	models.ActionReportSubmit,
}

// defaultEntry computes the default policy for one action name.
func defaultEntry(name string) models.ActionInfo {
	group := models.UsersGroupName
	if administrativeActions[name] {
		group = models.RootGroupName
	}
	mode := models.AccessMode{User: models.RightExecute, Group: models.RightExecute}
	if publicActions[name] {
		mode.Other = models.RightExecute
	}
	return models.ActionInfo{
		Name: name,
		AccessRights: models.AccessRights{
			Owner: models.AccessOwner{User: models.RootUserName, Group: group},
			Mode:  mode,
		},
	}
}

// Load reads the catalog file if present, merges the default policy for
// any action name the file does not cover, and rewrites the file.
func (c *Catalog) Load() error {
	var doc document
	raw, err := os.ReadFile(c.path)
	switch {
	case os.IsNotExist(err):
		// First boot: pure default policy.
	case err != nil:
		return fmt.Errorf("failed to read action catalog: %w", err)
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to parse action catalog %q: %w", c.path, err)
		}
	}

	present := make(map[string]bool, len(doc.Actions))
	c.entries = doc.Actions
	for _, e := range doc.Actions {
		present[e.Name] = true
	}
	merged := 0
	for _, name := range AllActionNames {
		if !present[name] {
			c.entries = append(c.entries, defaultEntry(name))
			merged++
		}
	}
	if err := c.save(); err != nil {
		return err
	}
	logger.Info("Action catalog loaded",
		"path", c.path,
		"actions", len(c.entries),
		"defaults_merged", merged,
	)
	return nil
}

// Save rewrites the catalog file.
func (c *Catalog) Save() error {
	return c.save()
}

func (c *Catalog) save() error {
	raw, err := json.MarshalIndent(document{Actions: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize action catalog: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write action catalog: %w", err)
	}
	return nil
}

// Actions returns a snapshot of all entries.
func (c *Catalog) Actions() []models.ActionInfo {
	out := make([]models.ActionInfo, len(c.entries))
	copy(out, c.entries)
	return out
}

// Find returns the entry for the given action name.
func (c *Catalog) Find(name string) (models.ActionInfo, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return models.ActionInfo{}, false
}

// Contains reports whether the action name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.Find(name)
	return ok
}

// AuthorizeUser checks the user against the action's rights with the
// Execute bit. Unknown actions are denied.
func (c *Catalog) AuthorizeUser(user models.UserInfo, actionName string) bool {
	entry, ok := c.Find(actionName)
	if !ok {
		return false
	}
	return models.Authorize(user, entry.AccessRights, models.RightExecute)
}

// RecordInvocation bumps the per-action counter.
func (c *Catalog) RecordInvocation(actionName string) {
	c.invocations[actionName]++
}

func (c *Catalog) update(name string, mutate func(*models.ActionInfo)) (models.ActionInfo, error) {
	for i := range c.entries {
		if c.entries[i].Name != name {
			continue
		}
		updated := c.entries[i]
		mutate(&updated)
		if err := updated.Validate(); err != nil {
			return models.ActionInfo{}, err
		}
		c.entries[i] = updated
		if err := c.save(); err != nil {
			logger.Error("Action catalog persistence failed", "path", c.path, "error", err)
		}
		return updated, nil
	}
	return models.ActionInfo{}, models.NewServiceError(models.ErrorInvalidInput,
		fmt.Sprintf("action %q does not exist", name))
}

// UpdateAccessOwner replaces the owner of the named entry, preserving
// the mode.
func (c *Catalog) UpdateAccessOwner(name string, owner models.AccessOwner) (models.ActionInfo, error) {
	if err := owner.Validate(); err != nil {
		return models.ActionInfo{}, models.NewServiceError(models.ErrorInvalidInput, err.Error())
	}
	return c.update(name, func(e *models.ActionInfo) {
		e.AccessRights.Owner = owner
	})
}

// UpdateAccessMode replaces the mode of the named entry, preserving the
// owner.
func (c *Catalog) UpdateAccessMode(name string, mode models.AccessMode) (models.ActionInfo, error) {
	if err := mode.Validate(); err != nil {
		return models.ActionInfo{}, models.NewServiceError(models.ErrorInvalidInput, err.Error())
	}
	return c.update(name, func(e *models.ActionInfo) {
		e.AccessRights.Mode = mode
	})
}

// Statistics returns the catalog's counters.
func (c *Catalog) Statistics() map[string]any {
	stats := map[string]any{
		"service": "actionManager",
		"actions": len(c.entries),
	}
	for name, n := range c.invocations {
		stats[name] = n
	}
	return stats
}
