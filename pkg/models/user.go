package models

import (
	"fmt"
	"regexp"
)

// Reserved principal names, created by the first-boot seed. The
// directory does not protect them afterwards; an administrator may
// remove them like any other principal.
const (
	RootUserName  = "root"
	GuestUserName = "guest"

	RootGroupName  = "root"
	UsersGroupName = "users"
	GuestGroupName = "guest"
)

// nameRegexp matches a valid user, group, action or process name.
var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// IsValidName reports whether s is a valid principal name.
func IsValidName(s string) bool {
	return nameRegexp.MatchString(s)
}

// UserInfo is a directory user: a name plus an ordered list of group
// memberships.
type UserInfo struct {
	Name       string   `json:"name"`
	GroupNames []string `json:"groupNames"`
}

// HasGroup checks if the user belongs to the named group.
func (u UserInfo) HasGroup(groupName string) bool {
	for _, g := range u.GroupNames {
		if g == groupName {
			return true
		}
	}
	return false
}

// Validate checks the user name against the name grammar.
func (u UserInfo) Validate() error {
	if !IsValidName(u.Name) {
		return fmt.Errorf("invalid user name %q", u.Name)
	}
	return nil
}

// NewUser creates a user with the default group membership.
func NewUser(name string) UserInfo {
	return UserInfo{Name: name, GroupNames: []string{UsersGroupName}}
}

// GroupInfo is a directory group.
type GroupInfo struct {
	Name string `json:"name"`
}

// Validate checks the group name against the name grammar.
func (g GroupInfo) Validate() error {
	if !IsValidName(g.Name) {
		return fmt.Errorf("invalid group name %q", g.Name)
	}
	return nil
}
