package models

// ActionInfo is one action-catalog entry: an action name bound to the
// access rights required to execute it.
type ActionInfo struct {
	Name         string       `json:"name"`
	AccessRights AccessRights `json:"accessRights"`
}

// Validate checks the entry name and rights.
func (a ActionInfo) Validate() error {
	if !IsValidName(a.Name) {
		return NewServiceError(ErrorInvalidInput, "invalid action name "+a.Name)
	}
	if err := a.AccessRights.Validate(); err != nil {
		return NewServiceError(ErrorInvalidInput, err.Error())
	}
	return nil
}
