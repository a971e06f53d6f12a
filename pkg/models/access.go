package models

import "fmt"

// AccessRight is a single rwx permission bit.
type AccessRight uint8

const (
	// RightNone requests an ownership check instead of a permission bit.
	RightNone AccessRight = 0
	// RightRead grants read access.
	RightRead AccessRight = 1
	// RightWrite grants write access.
	RightWrite AccessRight = 2
	// RightExecute grants execute access.
	RightExecute AccessRight = 4
)

// maskMax is the largest valid permission mask (R|W|X).
const maskMax = 7

// AccessOwner identifies the owning user and group of a resource.
type AccessOwner struct {
	User  string `json:"user"`
	Group string `json:"group"`
}

// Validate checks that both owner fields are set.
func (o AccessOwner) Validate() error {
	if o.User == "" {
		return fmt.Errorf("owner user is required")
	}
	if o.Group == "" {
		return fmt.Errorf("owner group is required")
	}
	return nil
}

// AccessMode holds the user/group/other permission masks.
// Each mask is a subset of {R=1, W=2, X=4}.
type AccessMode struct {
	User  AccessRight `json:"user"`
	Group AccessRight `json:"group"`
	Other AccessRight `json:"other"`
}

// Validate checks that every mask is within [0,7].
func (m AccessMode) Validate() error {
	if m.User > maskMax || m.Group > maskMax || m.Other > maskMax {
		return fmt.Errorf("access mode masks must be in [0,7]")
	}
	return nil
}

// AccessRights couples an owner with a permission mode.
type AccessRights struct {
	Owner AccessOwner `json:"owner"`
	Mode  AccessMode  `json:"mode"`
}

// Validate checks owner and mode validity.
func (r AccessRights) Validate() error {
	if err := r.Owner.Validate(); err != nil {
		return err
	}
	return r.Mode.Validate()
}

// Authorize is the access decision shared by every subsystem.
//
// With requested == RightNone the call is an ownership check: it passes
// only for root or the owning user. Otherwise root and members of the
// root group always pass, then the usual owner/group/other masks apply.
func Authorize(user UserInfo, rights AccessRights, requested AccessRight) bool {
	if requested == RightNone {
		return user.Name == RootUserName || user.Name == rights.Owner.User
	}
	if requested > maskMax {
		return false
	}
	if user.Name == RootUserName || user.HasGroup(RootGroupName) {
		return true
	}
	if user.Name == rights.Owner.User && rights.Mode.User&requested != 0 {
		return true
	}
	if user.HasGroup(rights.Owner.Group) && rights.Mode.Group&requested != 0 {
		return true
	}
	return rights.Mode.Other&requested != 0
}
