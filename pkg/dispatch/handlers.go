package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/filestore"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// route switches on the action name. Synchronous actions emit their
// reply inline; file and process actions park a pending entry until the
// service completes.
func (d *Dispatcher) route(e resolveEvent, a models.Action, executor models.UserInfo) {
	switch a.Name {
	case models.ActionTest:
		d.emit(e.reply, *a.Reply(a.Data, models.ErrorNone))

	case models.ActionFileList:
		d.submitFile(e, a, filestore.TaskListFiles, &models.FileObject{})
	case models.ActionFileInfo:
		d.submitFile(e, a, filestore.TaskFileInfo, objectByID(a))
	case models.ActionFileUpload:
		content, ok := d.decodeContent(e, a)
		if !ok {
			return
		}
		d.submitFile(e, a, filestore.TaskStoreFile, &models.FileObject{
			Info: models.FileInfo{
				ID:   uuid.NewString(),
				Path: a.ResourceName,
				AccessRights: models.AccessRights{
					Owner: models.AccessOwner{User: a.Executor, Group: models.UsersGroupName},
					Mode: models.AccessMode{
						User:  models.RightRead | models.RightWrite,
						Group: models.RightRead,
					},
				},
			},
			Content: content,
		})
	case models.ActionFileUpdate:
		content, ok := d.decodeContent(e, a)
		if !ok {
			return
		}
		d.submitFile(e, a, filestore.TaskUpdateFile, &models.FileObject{
			Info:    models.FileInfo{ID: a.ResourceID, Path: a.ResourceName},
			Content: content,
		})
	case models.ActionFileUpdateAccessOwner:
		var owner models.AccessOwner
		if !d.decode(e, a, &owner) {
			return
		}
		obj := objectByID(a)
		obj.Info.AccessRights.Owner = owner
		d.submitFile(e, a, filestore.TaskUpdateAccessOwner, obj)
	case models.ActionFileUpdateAccessMode:
		var mode models.AccessMode
		if !d.decode(e, a, &mode) {
			return
		}
		obj := objectByID(a)
		obj.Info.AccessRights.Mode = mode
		d.submitFile(e, a, filestore.TaskUpdateAccessMode, obj)
	case models.ActionFileUpdateVersion:
		obj := objectByID(a)
		obj.Info.Version = a.Data
		d.submitFile(e, a, filestore.TaskUpdateVersion, obj)
	case models.ActionFileUpdateTags:
		obj := objectByID(a)
		if a.Data != "" {
			obj.Info.Tags = strings.Split(a.Data, ",")
		}
		d.submitFile(e, a, filestore.TaskUpdateTags, obj)
	case models.ActionFileDownload:
		d.submitFile(e, a, filestore.TaskRetrieveFile, objectByID(a))
	case models.ActionFileRemove:
		d.submitFile(e, a, filestore.TaskRemoveFile, objectByID(a))

	case models.ActionUserList:
		d.jsonReply(e.reply, a, map[string]any{"users": d.svc.Directory.Users()})
	case models.ActionUserInfo:
		d.userInfo(e, a)
	case models.ActionUserAdd:
		d.userAdd(e, a)
	case models.ActionUserUpdate:
		d.userUpdate(e, a)
	case models.ActionUserRemove:
		d.errorOrReply(e, a, d.svc.Directory.RemoveUser(a.ResourceName), a.ResourceName)
	case models.ActionUserRegister:
		d.userRegister(e, a)

	case models.ActionUserTokensList:
		d.tokensList(e, a, executor)
	case models.ActionUserTokenGenerate:
		d.tokenGenerate(e, a, executor)
	case models.ActionUserTokenRemove:
		d.tokenRemove(e, a, executor)

	case models.ActionGroupList:
		d.jsonReply(e.reply, a, map[string]any{"groups": d.svc.Directory.Groups()})
	case models.ActionGroupInfo:
		d.groupInfo(e, a)
	case models.ActionGroupAdd:
		d.groupAdd(e, a)
	case models.ActionGroupRemove:
		d.errorOrReply(e, a, d.svc.Directory.RemoveGroup(a.ResourceName), a.ResourceName)

	case models.ActionActionList:
		d.jsonReply(e.reply, a, map[string]any{"actions": d.svc.Actions.Actions()})
	case models.ActionActionUpdateAccessOwner:
		var owner models.AccessOwner
		if !d.decode(e, a, &owner) {
			return
		}
		entry, err := d.svc.Actions.UpdateAccessOwner(a.ResourceName, owner)
		d.updateReply(e, a, entry, err)
	case models.ActionActionUpdateAccessMode:
		var mode models.AccessMode
		if !d.decode(e, a, &mode) {
			return
		}
		entry, err := d.svc.Actions.UpdateAccessMode(a.ResourceName, mode)
		d.updateReply(e, a, entry, err)

	case models.ActionProcessList:
		d.jsonReply(e.reply, a, map[string]any{"processes": d.svc.Processes.Catalog().Processes()})
	case models.ActionProcess:
		d.submitProcess(e, a, executor)
	case models.ActionProcessUpdateAccessOwner:
		var owner models.AccessOwner
		if !d.decode(e, a, &owner) {
			return
		}
		entry, err := d.svc.Processes.Catalog().UpdateAccessOwner(a.ResourceName, owner)
		d.updateReply(e, a, entry, err)
	case models.ActionProcessUpdateAccessMode:
		var mode models.AccessMode
		if !d.decode(e, a, &mode) {
			return
		}
		entry, err := d.svc.Processes.Catalog().UpdateAccessMode(a.ResourceName, mode)
		d.updateReply(e, a, entry, err)

	case models.ActionStatistics:
		d.jsonReply(e.reply, a, d.statistics())
	case models.ActionStop:
		d.emit(e.reply, *a.Reply("Stop server triggered", models.ErrorNone))
		if d.OnStop != nil {
			go d.OnStop()
		}
	case models.ActionReportSubmit:
		d.reportSubmit(e, a)

	default:
		// Contains() passed but no handler matched; catalog and
		// dispatcher disagree on the action namespace.
		logger.Error("Action without handler", "action", a.Name)
		d.emit(e.reply, *a.ErrorReply(models.ErrorApplication, "internal application error"))
	}
}

func objectByID(a models.Action) *models.FileObject {
	return &models.FileObject{Info: models.FileInfo{ID: a.ResourceID}}
}

// decodeContent decodes the Base64 file payload. JSON strings cannot
// carry arbitrary bytes, so file content crosses the wire Base64
// encoded in both directions.
func (d *Dispatcher) decodeContent(e resolveEvent, a models.Action) ([]byte, bool) {
	content, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("malformed file content: %s", err)))
		return nil, false
	}
	return content, true
}

// decode parses the action payload, emitting an InvalidInput reply on
// malformed JSON.
func (d *Dispatcher) decode(e resolveEvent, a models.Action, v any) bool {
	if err := json.Unmarshal([]byte(a.Data), v); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("malformed payload: %s", err)))
		return false
	}
	return true
}

// jsonReply marshals v as the reply payload.
func (d *Dispatcher) jsonReply(reply chan models.Action, a models.Action, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Error("Reply serialization failed", "action", a.Name, "error", err)
		d.emit(reply, *a.ErrorReply(models.ErrorApplication, "internal application error"))
		return
	}
	d.emit(reply, *a.Reply(string(raw), models.ErrorNone))
}

// errorOrReply emits an error reply derived from err, or a plain reply
// carrying data on success.
func (d *Dispatcher) errorOrReply(e resolveEvent, a models.Action, err error, data string) {
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.emit(e.reply, *a.Reply(data, models.ErrorNone))
}

func (d *Dispatcher) updateReply(e resolveEvent, a models.Action, entry any, err error) {
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.jsonReply(e.reply, a, entry)
}

func (d *Dispatcher) submitFile(e resolveEvent, a models.Action, taskType filestore.TaskType, obj *models.FileObject) {
	reqID, err := d.svc.Files.Submit(taskType, a.Executor, obj)
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.fileRequests[reqID] = pendingRequest{action: a, reply: e.reply, taskType: taskType}
}

func (d *Dispatcher) submitProcess(e resolveEvent, a models.Action, executor models.UserInfo) {
	var req models.ProcessRequest
	if !d.decode(e, a, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Executor = a.Executor

	if !d.svc.Processes.Catalog().AuthorizeUser(executor, req.Name) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorUnauthorized,
			fmt.Sprintf("user %q is not authorized to run process %q", a.Executor, req.Name)))
		return
	}
	reqID, err := d.svc.Processes.Submit(req, executor)
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.processRequests[reqID] = pendingRequest{action: a, reply: e.reply}
}

func (d *Dispatcher) userInfo(e resolveEvent, a models.Action) {
	target := a.ResourceName
	if target == "" {
		target = a.Executor
	}
	u, ok := d.svc.Directory.FindUser(target)
	if !ok {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("user %q does not exist", target)))
		return
	}
	d.jsonReply(e.reply, a, u)
}

func (d *Dispatcher) userAdd(e resolveEvent, a models.Action) {
	var u models.UserInfo
	if !d.decode(e, a, &u) {
		return
	}
	if err := d.svc.Directory.AddUser(u); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.jsonReply(e.reply, a, u)
}

func (d *Dispatcher) userUpdate(e resolveEvent, a models.Action) {
	var u models.UserInfo
	if !d.decode(e, a, &u) {
		return
	}
	name := a.ResourceName
	if name == "" {
		name = u.Name
	}
	if err := d.svc.Directory.SetUser(name, u); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.jsonReply(e.reply, a, u)
}

// userRegister is the self-service variant of user.add: it creates the
// named user with the standard users-group membership regardless of the
// payload.
func (d *Dispatcher) userRegister(e resolveEvent, a models.Action) {
	u := models.NewUser(a.ResourceName)
	if err := d.svc.Directory.AddUser(u); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	logger.Info("User registered", "user", u.Name, "executor", a.Executor)
	d.jsonReply(e.reply, a, u)
}

func (d *Dispatcher) groupInfo(e resolveEvent, a models.Action) {
	g, ok := d.svc.Directory.FindGroup(a.ResourceName)
	if !ok {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("group %q does not exist", a.ResourceName)))
		return
	}
	d.jsonReply(e.reply, a, g)
}

func (d *Dispatcher) groupAdd(e resolveEvent, a models.Action) {
	g := models.GroupInfo{Name: a.ResourceName}
	if a.Data != "" && !d.decode(e, a, &g) {
		return
	}
	if err := d.svc.Directory.AddGroup(g); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.jsonReply(e.reply, a, g)
}

// authorizeSelf gates token operations: only the target user, root, or
// a member of the root group may touch a user's tokens.
func authorizeSelf(executor models.UserInfo, target string) bool {
	return executor.Name == target ||
		executor.Name == models.RootUserName ||
		executor.HasGroup(models.RootGroupName)
}

func (d *Dispatcher) tokensList(e resolveEvent, a models.Action, executor models.UserInfo) {
	target := a.ResourceName
	if target == "" {
		target = a.Executor
	}
	if !authorizeSelf(executor, target) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorUnauthorized,
			fmt.Sprintf("user %q may not list tokens of %q", a.Executor, target)))
		return
	}
	tokens := d.svc.Directory.TokensFor(target)
	if tokens == nil {
		tokens = []models.AuthToken{}
	}
	d.jsonReply(e.reply, a, map[string]any{"tokens": tokens})
}

func (d *Dispatcher) tokenGenerate(e resolveEvent, a models.Action, executor models.UserInfo) {
	target := a.ResourceName
	if target == "" {
		target = a.Executor
	}
	if !authorizeSelf(executor, target) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorUnauthorized,
			fmt.Sprintf("user %q may not generate tokens for %q", a.Executor, target)))
		return
	}

	validity := time.Now().AddDate(0, 1, 0)
	token, err := models.NewAuthToken(target, validity)
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorApplication, err.Error()))
		return
	}
	if err := d.svc.Directory.AddToken(token); err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}

	d.svc.Mail.Submit(models.MailMessage{
		To:      target,
		Subject: "Authentication token created",
		Body: fmt.Sprintf("Token: %s\nValid until: %s\n",
			token.Content, validity.Format(time.ANSIC)),
	})
	d.jsonReply(e.reply, a, token)
}

func (d *Dispatcher) tokenRemove(e resolveEvent, a models.Action, executor models.UserInfo) {
	token, ok := d.svc.Directory.FindToken(a.ResourceID)
	if !ok {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("token %s does not exist", a.ResourceID)))
		return
	}
	if !authorizeSelf(executor, token.ResourceName) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorUnauthorized,
			fmt.Sprintf("user %q may not remove tokens of %q", a.Executor, token.ResourceName)))
		return
	}
	d.errorOrReply(e, a, d.svc.Directory.RemoveToken(token.ID), token.ID)
}

func (d *Dispatcher) reportSubmit(e resolveEvent, a models.Action) {
	var record models.ReportRecord
	if !d.decode(e, a, &record) {
		return
	}
	id, err := d.svc.Reports.Submit(e.from, record)
	if err != nil {
		d.emit(e.reply, *a.ErrorReply(models.ErrorTypeOf(err), err.Error()))
		return
	}
	d.jsonReply(e.reply, a, map[string]any{"id": id})
}

// statistics aggregates the per-service counters with version and
// uptime information.
func (d *Dispatcher) statistics() map[string]any {
	now := time.Now()
	return map[string]any{
		"general": map[string]any{
			"version": d.cfg.Version,
		},
		"dateTime": map[string]any{
			"start":   d.startTime.Format(time.RFC3339),
			"current": now.Format(time.RFC3339),
			"upTime":  formatUptime(now.Sub(d.startTime)),
		},
		"services": []map[string]any{
			d.svc.Directory.Statistics(),
			d.svc.Actions.Statistics(),
			d.svc.Files.Statistics(),
			d.svc.Processes.Statistics(),
			d.svc.Reports.Statistics(),
			d.svc.Mail.Statistics(),
		},
	}
}

// formatUptime renders a duration as "N days, HH:MM:SS".
func formatUptime(elapsed time.Duration) string {
	secs := int64(elapsed.Seconds())
	if secs < 0 {
		secs = 0
	}
	days := secs / 86400
	secs %= 86400
	return fmt.Sprintf("%d days, %02d:%02d:%02d", days, secs/3600, (secs%3600)/60, secs%60)
}
