// Package filestore implements the file service: a single-worker task
// engine owning the on-disk blob store, the in-memory index, and the
// size accounting.
//
// Producers submit tasks and receive an internally generated request id;
// the worker executes tasks strictly in submission order and reports
// each completion through a callback. All index and store mutation
// happens on the worker goroutine.
package filestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/internal/telemetry"
	"github.com/rangelabs/rangecloud/pkg/metrics"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// TaskType names one of the file service's operations.
type TaskType string

const (
	TaskListFiles         TaskType = "listFiles"
	TaskFileInfo          TaskType = "fileInfo"
	TaskStoreFile         TaskType = "storeFile"
	TaskUpdateFile        TaskType = "updateFile"
	TaskUpdateAccessOwner TaskType = "updateFileAccessOwner"
	TaskUpdateAccessMode  TaskType = "updateFileAccessMode"
	TaskUpdateVersion     TaskType = "updateFileVersion"
	TaskUpdateTags        TaskType = "updateFileTags"
	TaskRetrieveFile      TaskType = "retrieveFile"
	TaskRemoveFile        TaskType = "removeFile"
)

// isMutating reports whether the task rewrites the index file.
func (t TaskType) isMutating() bool {
	switch t {
	case TaskListFiles, TaskFileInfo, TaskRetrieveFile:
		return false
	}
	return true
}

// spanName maps the task onto its trace span name.
func (t TaskType) spanName() string {
	switch t {
	case TaskListFiles, TaskFileInfo:
		return telemetry.SpanFileList
	case TaskStoreFile:
		return telemetry.SpanFileStore
	case TaskRetrieveFile:
		return telemetry.SpanFileRetrieve
	case TaskRemoveFile:
		return telemetry.SpanFileRemove
	default:
		return telemetry.SpanFileUpdate
	}
}

// Completion is the worker's report for one finished task. On success
// the object's content carries the result (JSON or file bytes); on
// failure it carries a diagnostic string and ErrorType is set.
type Completion struct {
	RequestID string
	Object    *models.FileObject
}

// DirectoryView is the read-only slice of the directory the file
// service needs for authorization and owner validation.
type DirectoryView interface {
	FindUser(name string) (models.UserInfo, bool)
	ContainsUser(name string) bool
	ContainsGroup(name string) bool
}

// Config holds the file service settings.
type Config struct {
	// StoreDir is the directory holding blobs and the index file.
	StoreDir string
	// MaxStoreSize caps the sum of all blob sizes; <= 0 disables the cap.
	MaxStoreSize int64
	// MaxFileSize caps a single upload; <= 0 disables the cap.
	MaxFileSize int64
}

const indexFileName = "index.txt"

type task struct {
	requestID string
	taskType  TaskType
	executor  string
	object    *models.FileObject
}

// Service is the file service. Create with New, then Start, then Submit
// tasks; Stop drains the queue and stops the worker.
type Service struct {
	cfg         Config
	dir         DirectoryView
	onCompleted func(Completion)

	// stateMu guards index, totalSize and counters: the worker owns
	// them during task execution, Statistics reads them from the
	// dispatcher goroutine.
	stateMu   sync.Mutex
	index     *Index
	totalSize int64
	counters  map[TaskType]uint64

	mu     sync.Mutex
	closed bool
	tasks  chan task
	done   chan struct{}
}

// New creates a file service. onCompleted is invoked on the worker
// goroutine for every finished task.
func New(cfg Config, dir DirectoryView, onCompleted func(Completion)) *Service {
	return &Service{
		cfg:         cfg,
		dir:         dir,
		onCompleted: onCompleted,
		index:       NewIndex(filepath.Join(cfg.StoreDir, indexFileName)),
		counters:    make(map[TaskType]uint64),
		tasks:       make(chan task, 128),
		done:        make(chan struct{}),
	}
}

// Start loads the index and launches the worker.
func (s *Service) Start() error {
	if err := os.MkdirAll(s.cfg.StoreDir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := s.index.Load(); err != nil {
		return fmt.Errorf("failed to load store index: %w", err)
	}
	s.totalSize = s.index.TotalSize()
	metrics.StoreBytes.Set(float64(s.totalSize))
	metrics.StoreFiles.Set(float64(s.index.Len()))
	logger.Info("File store loaded",
		"dir", s.cfg.StoreDir,
		"files", s.index.Len(),
		"bytes", s.totalSize,
	)
	go s.run()
	return nil
}

// Stop closes the queue, waits for the worker to drain it, and returns.
// Submitting after Stop fails.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()
	<-s.done
}

// Submit enqueues a task and returns its request id. The object is
// owned by the service until the completion callback fires.
func (s *Service) Submit(taskType TaskType, executor string, object *models.FileObject) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", models.NewServiceError(models.ErrorApplication, "file service is stopped")
	}
	t := task{
		requestID: uuid.NewString(),
		taskType:  taskType,
		executor:  executor,
		object:    object,
	}
	s.tasks <- t
	s.mu.Unlock()
	return t.requestID, nil
}

// run is the worker loop: strictly serial, wakes on enqueue, exits when
// the queue is closed and drained.
func (s *Service) run() {
	defer close(s.done)
	for t := range s.tasks {
		s.stateMu.Lock()
		s.execute(t)
		s.counters[t.taskType]++
		s.stateMu.Unlock()
		metrics.FileTasksTotal.WithLabelValues(string(t.taskType), string(t.object.ErrorType)).Inc()
		if s.onCompleted != nil {
			s.onCompleted(Completion{RequestID: t.requestID, Object: t.object})
		}
	}
}

func (s *Service) execute(t task) {
	// The worker runs long after the HTTP request returned its request
	// id, so each task roots its own trace.
	ctx, span := telemetry.StartFileSpan(context.Background(), t.taskType.spanName(), t.object.Info.Path,
		telemetry.FileID(t.object.Info.ID))
	defer span.End()

	var err *models.ServiceError
	switch t.taskType {
	case TaskListFiles:
		err = s.listFiles(t.executor, t.object)
	case TaskFileInfo:
		err = s.fileInfo(t.executor, t.object)
	case TaskStoreFile:
		err = s.storeFile(t.executor, t.object)
	case TaskUpdateFile:
		err = s.updateFile(t.executor, t.object)
	case TaskUpdateAccessOwner:
		err = s.updateAccessOwner(t.object)
	case TaskUpdateAccessMode:
		err = s.updateAccessMode(t.executor, t.object)
	case TaskUpdateVersion:
		err = s.updateVersion(t.executor, t.object)
	case TaskUpdateTags:
		err = s.updateTags(t.executor, t.object)
	case TaskRetrieveFile:
		err = s.retrieveFile(t.executor, t.object)
	case TaskRemoveFile:
		err = s.removeFile(t.executor, t.object)
	default:
		err = models.NewServiceError(models.ErrorUnknown, fmt.Sprintf("unknown task type %q", t.taskType))
	}

	if err != nil {
		t.object.ErrorType = err.Type
		t.object.Content = []byte(err.Message)
		telemetry.RecordError(ctx, err)
		logger.Warn("File task failed",
			"task", string(t.taskType),
			logger.FileID(t.object.Info.ID),
			logger.Executor(t.executor),
			logger.ErrorType(string(err.Type)),
			"error", err.Message,
		)
		return
	}
	t.object.ErrorType = models.ErrorNone
	if t.taskType.isMutating() {
		s.persistIndex()
		metrics.StoreBytes.Set(float64(s.totalSize))
		metrics.StoreFiles.Set(float64(s.index.Len()))
	}
}

// persistIndex writes the index, logging failures: the blob mutation is
// already durable and the next mutating task retries the write.
func (s *Service) persistIndex() {
	if err := s.index.Write(); err != nil {
		logger.Error("Store index persistence failed", logger.Err(err))
	}
}

func (s *Service) authorize(executor string, rights models.AccessRights, requested models.AccessRight) bool {
	u, ok := s.dir.FindUser(executor)
	if !ok {
		return false
	}
	return models.Authorize(u, rights, requested)
}

func (s *Service) blobPath(id string) string {
	return filepath.Join(s.cfg.StoreDir, id)
}

func invalidInput(format string, args ...any) *models.ServiceError {
	return models.NewServiceError(models.ErrorInvalidInput, fmt.Sprintf(format, args...))
}

func unauthorized(executor string, verb string) *models.ServiceError {
	return models.NewServiceError(models.ErrorUnauthorized,
		fmt.Sprintf("user %q is not authorized to %s", executor, verb))
}

// writeBlob writes content and re-reads it from disk, returning the
// authoritative size and checksum.
func (s *Service) writeBlob(id string, content []byte) (int64, string, *models.ServiceError) {
	path := s.blobPath(id)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return 0, "", models.NewServiceError(models.ErrorWriteFile,
			fmt.Sprintf("failed to write file content: %v", err))
	}
	stored, err := os.ReadFile(path)
	if err != nil {
		return 0, "", models.NewServiceError(models.ErrorReadFile,
			fmt.Sprintf("failed to read back file content: %v", err))
	}
	sum := md5.Sum(stored)
	return int64(len(stored)), hex.EncodeToString(sum[:]), nil
}

func marshalInfo(obj *models.FileObject, info models.FileInfo) *models.ServiceError {
	raw, err := json.Marshal(info)
	if err != nil {
		return models.NewServiceError(models.ErrorApplication,
			fmt.Sprintf("failed to serialize file info: %v", err))
	}
	obj.Info = info
	obj.Content = raw
	return nil
}

func (s *Service) storeFile(executor string, obj *models.FileObject) *models.ServiceError {
	info := obj.Info
	if err := info.AccessRights.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	// Write authorization runs against the proposed rights.
	if !s.authorize(executor, info.AccessRights, models.RightWrite) {
		return unauthorized(executor, "store the file")
	}
	size := int64(len(obj.Content))
	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return invalidInput("file exceeds the maximum file size (%d bytes)", s.cfg.MaxFileSize)
	}
	if s.cfg.MaxStoreSize > 0 && s.totalSize+size > s.cfg.MaxStoreSize {
		return invalidInput("file store is full")
	}
	if !models.IsValidPath(info.Path) {
		return invalidInput("invalid file path %q", info.Path)
	}

	storedSize, checksum, serr := s.writeBlob(info.ID, obj.Content)
	if serr != nil {
		return serr
	}
	now := time.Now().Unix()
	info.Size = storedSize
	info.MD5Checksum = checksum
	info.CreatedAt = now
	info.UpdatedAt = now

	s.index.Register(info)
	s.totalSize += storedSize
	return marshalInfo(obj, info)
}

func (s *Service) updateFile(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	if !s.authorize(executor, existing.AccessRights, models.RightWrite) {
		return unauthorized(executor, "update the file")
	}
	if !models.IsValidPath(obj.Info.Path) {
		return invalidInput("invalid file path %q", obj.Info.Path)
	}

	storedSize, checksum, serr := s.writeBlob(existing.ID, obj.Content)
	if serr != nil {
		return serr
	}
	s.totalSize += storedSize - existing.Size
	existing.Path = obj.Info.Path
	existing.Size = storedSize
	existing.MD5Checksum = checksum
	existing.UpdatedAt = time.Now().Unix()

	s.index.Register(existing)
	return marshalInfo(obj, existing)
}

// updateAccessOwner replaces the owner, preserving the mode. It does not
// re-check write authorization on the existing file; the action is gated
// at the catalog layer.
func (s *Service) updateAccessOwner(obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	owner := obj.Info.AccessRights.Owner
	if err := owner.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	if !s.dir.ContainsUser(owner.User) {
		return invalidInput("unknown user %q", owner.User)
	}
	if !s.dir.ContainsGroup(owner.Group) {
		return invalidInput("unknown group %q", owner.Group)
	}
	existing.AccessRights.Owner = owner
	s.index.Register(existing)
	return marshalInfo(obj, existing)
}

// updateAccessMode requires ownership: only root, root-group members or
// the file's owner-user may change the mode.
func (s *Service) updateAccessMode(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	u, found := s.dir.FindUser(executor)
	if !found || !(models.Authorize(u, existing.AccessRights, models.RightNone) || u.HasGroup(models.RootGroupName)) {
		return unauthorized(executor, "change the file access mode")
	}
	mode := obj.Info.AccessRights.Mode
	if err := mode.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	existing.AccessRights.Mode = mode
	s.index.Register(existing)
	return marshalInfo(obj, existing)
}

func (s *Service) updateVersion(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	if !s.authorize(executor, existing.AccessRights, models.RightWrite) {
		return unauthorized(executor, "update the file version")
	}
	existing.Version = obj.Info.Version
	s.index.Register(existing)
	return marshalInfo(obj, existing)
}

func (s *Service) updateTags(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	if !s.authorize(executor, existing.AccessRights, models.RightWrite) {
		return unauthorized(executor, "update the file tags")
	}
	tags := obj.Info.Tags
	if len(tags) > models.MaxNumTags {
		return invalidInput("at most %d tags are allowed", models.MaxNumTags)
	}
	for _, tag := range tags {
		if !models.IsValidTag(tag) {
			return invalidInput("invalid tag %q", tag)
		}
	}
	existing.Tags = tags
	s.index.Register(existing)
	return marshalInfo(obj, existing)
}

func (s *Service) retrieveFile(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	if !s.authorize(executor, existing.AccessRights, models.RightRead) {
		return unauthorized(executor, "read the file")
	}
	content, err := os.ReadFile(s.blobPath(existing.ID))
	if err != nil {
		return models.NewServiceError(models.ErrorReadFile,
			fmt.Sprintf("failed to read file content: %v", err))
	}
	obj.Info = existing
	obj.Content = content
	return nil
}

func (s *Service) removeFile(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	// Authorize before unregistering so a denied request leaves the
	// index untouched.
	if !s.authorize(executor, existing.AccessRights, models.RightWrite) {
		return unauthorized(executor, "remove the file")
	}
	if err := os.Remove(s.blobPath(existing.ID)); err != nil {
		return models.NewServiceError(models.ErrorWriteFile,
			fmt.Sprintf("failed to remove file content: %v", err))
	}
	s.index.Unregister(existing.ID)
	s.totalSize -= existing.Size
	return marshalInfo(obj, existing)
}

type fileList struct {
	Files []models.FileInfo `json:"files"`
}

// listFiles returns the executor's read-authorized view of the index.
func (s *Service) listFiles(executor string, obj *models.FileObject) *models.ServiceError {
	visible := fileList{Files: []models.FileInfo{}}
	for _, info := range s.index.All() {
		if s.authorize(executor, info.AccessRights, models.RightRead) {
			visible.Files = append(visible.Files, info)
		}
	}
	raw, err := json.Marshal(visible)
	if err != nil {
		return models.NewServiceError(models.ErrorApplication,
			fmt.Sprintf("failed to serialize file list: %v", err))
	}
	obj.Content = raw
	return nil
}

func (s *Service) fileInfo(executor string, obj *models.FileObject) *models.ServiceError {
	existing, ok := s.index.Find(obj.Info.ID)
	if !ok {
		return invalidInput("file %s does not exist", obj.Info.ID)
	}
	if !s.authorize(executor, existing.AccessRights, models.RightRead) {
		return unauthorized(executor, "read the file info")
	}
	return marshalInfo(obj, existing)
}

// TotalSize returns the current size accounting.
func (s *Service) TotalSize() int64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.totalSize
}

// Statistics returns the service's counters.
func (s *Service) Statistics() map[string]any {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	stats := map[string]any{
		"service": "fileManager",
		"files":   s.index.Len(),
		"bytes":   s.totalSize,
	}
	for t, n := range s.counters {
		stats[string(t)] = n
	}
	return stats
}
