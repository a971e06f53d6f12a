// Package process implements the process catalog and runner: a
// persisted list of named external programs and the machinery to spawn
// them with templated arguments on behalf of an authorized user.
package process

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// document is the on-disk shape of the catalog.
type document struct {
	Processes []models.ProcessInfo `json:"processes"`
}

// Catalog holds the process definitions. It is confined to the
// dispatcher goroutine.
type Catalog struct {
	path    string
	entries []models.ProcessInfo
}

// NewCatalog creates a catalog persisted at path. Call Load before use.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// defaultEntries is the catalog written on first boot. The executables
// reference the processes directory through the <processes> template.
func defaultEntries() []models.ProcessInfo {
	rights := models.AccessRights{
		Owner: models.AccessOwner{User: models.RootUserName, Group: models.RootGroupName},
		Mode:  models.AccessMode{User: models.RightExecute, Group: models.RightExecute},
	}
	return []models.ProcessInfo{
		{
			Name:         "hello-world",
			Executable:   "<processes>/helo_world.sh",
			Arguments:    []string{"--parameter1=<value1>", "--parameter2=<value2>", "--switch"},
			AccessRights: rights,
		},
		{
			Name:         "process-csr",
			Executable:   "<processes>/process_csr.sh",
			Arguments:    []string{"--csr-base64=<csr-content-base64>"},
			AccessRights: rights,
		},
		{
			Name:         "process-report",
			Executable:   "<processes>/process_report.sh",
			Arguments:    []string{"--report-base64=<report-content-base64>"},
			AccessRights: rights,
		},
	}
}

// Load reads the catalog file, seeding the default definitions when the
// file does not exist yet.
func (c *Catalog) Load() error {
	raw, err := os.ReadFile(c.path)
	switch {
	case os.IsNotExist(err):
		c.entries = defaultEntries()
		if err := c.save(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read process catalog: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to parse process catalog %q: %w", c.path, err)
		}
		c.entries = doc.Processes
	}
	logger.Info("Process catalog loaded", logger.Path(c.path), "processes", len(c.entries))
	return nil
}

// Save rewrites the catalog file.
func (c *Catalog) Save() error {
	return c.save()
}

func (c *Catalog) save() error {
	raw, err := json.MarshalIndent(document{Processes: c.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize process catalog: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write process catalog: %w", err)
	}
	return nil
}

// Processes returns a snapshot of all definitions.
func (c *Catalog) Processes() []models.ProcessInfo {
	out := make([]models.ProcessInfo, len(c.entries))
	copy(out, c.entries)
	return out
}

// Find returns the definition for the given process name.
func (c *Catalog) Find(name string) (models.ProcessInfo, bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return models.ProcessInfo{}, false
}

// Contains reports whether the process name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.Find(name)
	return ok
}

// AuthorizeUser checks the user against the process rights with the
// Execute bit. Unknown processes are denied.
func (c *Catalog) AuthorizeUser(user models.UserInfo, name string) bool {
	entry, ok := c.Find(name)
	if !ok {
		return false
	}
	return models.Authorize(user, entry.AccessRights, models.RightExecute)
}

func (c *Catalog) update(name string, mutate func(*models.ProcessInfo)) (models.ProcessInfo, error) {
	for i := range c.entries {
		if c.entries[i].Name != name {
			continue
		}
		updated := c.entries[i]
		mutate(&updated)
		if err := updated.AccessRights.Validate(); err != nil {
			return models.ProcessInfo{}, models.NewServiceError(models.ErrorInvalidInput, err.Error())
		}
		c.entries[i] = updated
		if err := c.save(); err != nil {
			logger.Error("Process catalog persistence failed", logger.Path(c.path), logger.Err(err))
		}
		return updated, nil
	}
	return models.ProcessInfo{}, models.NewServiceError(models.ErrorInvalidInput,
		fmt.Sprintf("process %q does not exist", name))
}

// UpdateAccessOwner replaces the owner of the named definition,
// preserving the mode.
func (c *Catalog) UpdateAccessOwner(name string, owner models.AccessOwner) (models.ProcessInfo, error) {
	if err := owner.Validate(); err != nil {
		return models.ProcessInfo{}, models.NewServiceError(models.ErrorInvalidInput, err.Error())
	}
	return c.update(name, func(e *models.ProcessInfo) {
		e.AccessRights.Owner = owner
	})
}

// UpdateAccessMode replaces the mode of the named definition, preserving
// the owner.
func (c *Catalog) UpdateAccessMode(name string, mode models.AccessMode) (models.ProcessInfo, error) {
	if err := mode.Validate(); err != nil {
		return models.ProcessInfo{}, models.NewServiceError(models.ErrorInvalidInput, err.Error())
	}
	return c.update(name, func(e *models.ProcessInfo) {
		e.AccessRights.Mode = mode
	})
}
