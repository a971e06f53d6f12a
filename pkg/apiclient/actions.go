package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rangelabs/rangecloud/pkg/models"
)

// Test echoes data through the dispatcher.
func (c *Client) Test(ctx context.Context, data string) (string, error) {
	reply, err := c.Call(ctx, models.Action{Name: models.ActionTest, Data: data})
	if err != nil {
		return "", err
	}
	return reply.Data, nil
}

// Statistics fetches the server statistics document.
func (c *Client) Statistics(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.call(ctx, models.Action{Name: models.ActionStatistics}, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Stop asks the server to shut down.
func (c *Client) Stop(ctx context.Context) (string, error) {
	reply, err := c.Call(ctx, models.Action{Name: models.ActionStop})
	if err != nil {
		return "", err
	}
	return reply.Data, nil
}

// UploadFile stores content under the given logical path and returns
// the stored file's metadata. Content is Base64 encoded on the wire so
// arbitrary bytes survive the JSON message.
func (c *Client) UploadFile(ctx context.Context, path string, content []byte) (models.FileInfo, error) {
	var info models.FileInfo
	err := c.call(ctx, models.Action{
		Name:         models.ActionFileUpload,
		ResourceName: path,
		Data:         base64.StdEncoding.EncodeToString(content),
	}, &info)
	return info, err
}

// DownloadFile retrieves a stored file's content by id.
func (c *Client) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	reply, err := c.Call(ctx, models.Action{Name: models.ActionFileDownload, ResourceID: id})
	if err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("malformed file content in reply: %w", err)
	}
	return content, nil
}

// ListFiles lists the files the executor may see.
func (c *Client) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	var payload struct {
		Files []models.FileInfo `json:"files"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionFileList}, &payload); err != nil {
		return nil, err
	}
	return payload.Files, nil
}

// FileInfo fetches one file's metadata by id.
func (c *Client) FileInfo(ctx context.Context, id string) (models.FileInfo, error) {
	var info models.FileInfo
	err := c.call(ctx, models.Action{Name: models.ActionFileInfo, ResourceID: id}, &info)
	return info, err
}

// RemoveFile deletes a stored file by id.
func (c *Client) RemoveFile(ctx context.Context, id string) error {
	_, err := c.Call(ctx, models.Action{Name: models.ActionFileRemove, ResourceID: id})
	return err
}

// ListUsers lists directory users.
func (c *Client) ListUsers(ctx context.Context) ([]models.UserInfo, error) {
	var payload struct {
		Users []models.UserInfo `json:"users"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionUserList}, &payload); err != nil {
		return nil, err
	}
	return payload.Users, nil
}

// UserInfo fetches one user. An empty name resolves the executor.
func (c *Client) UserInfo(ctx context.Context, name string) (models.UserInfo, error) {
	var user models.UserInfo
	err := c.call(ctx, models.Action{Name: models.ActionUserInfo, ResourceName: name}, &user)
	return user, err
}

// AddUser creates a user with explicit group membership.
func (c *Client) AddUser(ctx context.Context, user models.UserInfo) (models.UserInfo, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return models.UserInfo{}, fmt.Errorf("failed to marshal user: %w", err)
	}
	var created models.UserInfo
	err = c.call(ctx, models.Action{
		Name:         models.ActionUserAdd,
		ResourceName: user.Name,
		Data:         string(data),
	}, &created)
	return created, err
}

// RegisterUser self-registers a user with the standard membership.
func (c *Client) RegisterUser(ctx context.Context, name string) (models.UserInfo, error) {
	var created models.UserInfo
	err := c.call(ctx, models.Action{Name: models.ActionUserRegister, ResourceName: name}, &created)
	return created, err
}

// RemoveUser deletes a user from the directory.
func (c *Client) RemoveUser(ctx context.Context, name string) error {
	_, err := c.Call(ctx, models.Action{Name: models.ActionUserRemove, ResourceName: name})
	return err
}

// GenerateToken mints a single-shot token for the named user.
func (c *Client) GenerateToken(ctx context.Context, name string) (models.AuthToken, error) {
	var token models.AuthToken
	err := c.call(ctx, models.Action{Name: models.ActionUserTokenGenerate, ResourceName: name}, &token)
	return token, err
}

// ListTokens lists the named user's outstanding tokens.
func (c *Client) ListTokens(ctx context.Context, name string) ([]models.AuthToken, error) {
	var payload struct {
		Tokens []models.AuthToken `json:"tokens"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionUserTokensList, ResourceName: name}, &payload); err != nil {
		return nil, err
	}
	return payload.Tokens, nil
}

// RemoveToken revokes one token by id.
func (c *Client) RemoveToken(ctx context.Context, id string) error {
	_, err := c.Call(ctx, models.Action{Name: models.ActionUserTokenRemove, ResourceID: id})
	return err
}

// ListGroups lists directory groups.
func (c *Client) ListGroups(ctx context.Context) ([]models.GroupInfo, error) {
	var payload struct {
		Groups []models.GroupInfo `json:"groups"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionGroupList}, &payload); err != nil {
		return nil, err
	}
	return payload.Groups, nil
}

// AddGroup creates a group.
func (c *Client) AddGroup(ctx context.Context, name string) (models.GroupInfo, error) {
	var created models.GroupInfo
	err := c.call(ctx, models.Action{Name: models.ActionGroupAdd, ResourceName: name}, &created)
	return created, err
}

// RemoveGroup deletes a group and strips it from all members.
func (c *Client) RemoveGroup(ctx context.Context, name string) error {
	_, err := c.Call(ctx, models.Action{Name: models.ActionGroupRemove, ResourceName: name})
	return err
}

// ListActions lists the action catalog with access rights and counters.
func (c *Client) ListActions(ctx context.Context) ([]models.ActionInfo, error) {
	var payload struct {
		Actions []models.ActionInfo `json:"actions"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionActionList}, &payload); err != nil {
		return nil, err
	}
	return payload.Actions, nil
}

// ListProcesses lists the process catalog.
func (c *Client) ListProcesses(ctx context.Context) ([]models.ProcessInfo, error) {
	var payload struct {
		Processes []models.ProcessInfo `json:"processes"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionProcessList}, &payload); err != nil {
		return nil, err
	}
	return payload.Processes, nil
}

// RunProcess executes a catalog process and returns its output.
func (c *Client) RunProcess(ctx context.Context, name string, argumentValues map[string]string) (models.ProcessResponse, error) {
	request := models.ProcessRequest{Name: name, ArgumentValues: argumentValues}
	data, err := json.Marshal(request)
	if err != nil {
		return models.ProcessResponse{}, fmt.Errorf("failed to marshal process request: %w", err)
	}
	var response models.ProcessResponse
	err = c.call(ctx, models.Action{
		Name:         models.ActionProcess,
		ResourceName: name,
		Data:         string(data),
	}, &response)
	return response, err
}

// SubmitReport archives a report with an optional comment and returns
// the archived report's id.
func (c *Client) SubmitReport(ctx context.Context, record models.ReportRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, models.Action{Name: models.ActionReportSubmit, Data: string(data)}, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}
