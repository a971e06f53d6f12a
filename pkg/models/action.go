package models

import "github.com/google/uuid"

// Action names form a closed set; each maps to exactly one handler in the
// dispatcher.
const (
	ActionTest = "test"

	ActionFileList              = "file.list"
	ActionFileInfo              = "file.info"
	ActionFileUpload            = "file.upload"
	ActionFileUpdate            = "file.update"
	ActionFileUpdateAccessOwner = "file.update-access-owner"
	ActionFileUpdateAccessMode  = "file.update-access-mode"
	ActionFileUpdateVersion     = "file.update-version"
	ActionFileUpdateTags        = "file.update-tags"
	ActionFileDownload          = "file.download"
	ActionFileRemove            = "file.remove"

	ActionUserList     = "user.list"
	ActionUserInfo     = "user.info"
	ActionUserAdd      = "user.add"
	ActionUserUpdate   = "user.update"
	ActionUserRemove   = "user.remove"
	ActionUserRegister = "user.register"

	ActionUserTokensList    = "user.tokens.list"
	ActionUserTokenGenerate = "user.token.generate"
	ActionUserTokenRemove   = "user.token.remove"

	ActionGroupList   = "group.list"
	ActionGroupInfo   = "group.info"
	ActionGroupAdd    = "group.add"
	ActionGroupRemove = "group.remove"

	ActionActionList              = "action.list"
	ActionActionUpdateAccessOwner = "action.update-access-owner"
	ActionActionUpdateAccessMode  = "action.update-access-mode"

	ActionProcessList              = "process.list"
	ActionProcess                  = "process"
	ActionProcessUpdateAccessOwner = "process.update-access-owner"
	ActionProcessUpdateAccessMode  = "process.update-access-mode"

	ActionStatistics   = "statistics"
	ActionStop         = "stop"
	ActionReportSubmit = "report.submit"
)

// Action is the wire message carried in both directions: the inbound
// request and the resolved reply share the same shape and the same id.
// Data carries the payload; file content travels Base64 encoded, since
// a JSON string cannot hold arbitrary bytes.
type Action struct {
	ID           string    `json:"id"`
	Executor     string    `json:"executor"`
	Name         string    `json:"action"`
	ResourceName string    `json:"resourceName,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Data         string    `json:"data,omitempty"`
	ErrorType    ErrorType `json:"errorType"`
}

// NewAction builds a request message with a fresh id.
func NewAction(executor, name string) *Action {
	return &Action{
		ID:        uuid.NewString(),
		Executor:  executor,
		Name:      name,
		ErrorType: ErrorNone,
	}
}

// Reply derives the resolved reply for this action, preserving id, name
// and executor.
func (a *Action) Reply(data string, errorType ErrorType) *Action {
	return &Action{
		ID:           a.ID,
		Executor:     a.Executor,
		Name:         a.Name,
		ResourceName: a.ResourceName,
		ResourceID:   a.ResourceID,
		Data:         data,
		ErrorType:    errorType,
	}
}

// ErrorReply derives a failed reply whose payload is the diagnostic text.
func (a *Action) ErrorReply(errorType ErrorType, diagnostic string) *Action {
	return a.Reply(diagnostic, errorType)
}

// IsError reports whether the message carries a failure.
func (a *Action) IsError() bool {
	return a.ErrorType != ErrorNone && a.ErrorType != ""
}
