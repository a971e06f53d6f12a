package models

// ProcessInfo is one catalog entry: a named external program with an
// argument template and access rights.
type ProcessInfo struct {
	Name         string       `json:"name"`
	Executable   string       `json:"executable"`
	Arguments    []string     `json:"arguments"`
	AccessRights AccessRights `json:"accessRights"`
}

// ProcessRequest is the payload of the "process" action. Executor is
// always overwritten by the dispatcher with the authenticated caller.
type ProcessRequest struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ArgumentValues map[string]string `json:"argumentValues,omitempty"`
	Executor       string            `json:"executor,omitempty"`
}

// ProcessResponse is the reply payload of the "process" action.
type ProcessResponse struct {
	Request         ProcessRequest `json:"request"`
	ResponseMessage string         `json:"responseMessage"`
}

// ProcessResult is the runner's completion record: captured output,
// captured error stream, and the outcome category.
type ProcessResult struct {
	Request      ProcessRequest
	OutputBuffer string
	ErrorBuffer  string
	ErrorType    ErrorType
}

// MailMessage is one outbound mail queued for the local transport.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// ReportRecord is the payload of the "report.submit" action.
type ReportRecord struct {
	Report  string `json:"report"`
	Comment string `json:"comment,omitempty"`
	Created int64  `json:"created,omitempty"`
}
