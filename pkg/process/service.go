package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/internal/telemetry"
	"github.com/rangelabs/rangecloud/pkg/metrics"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// Config holds the directories the runner hands to spawned children.
type Config struct {
	ProcessesDir string
	WorkDir      string
	LogDir       string
	RangeCADir   string
}

// Completion carries a finished run back to the dispatcher.
type Completion struct {
	RequestID string
	Result    models.ProcessResult
}

// Service spawns catalog processes and keeps their results until the
// dispatcher finalizes them. One goroutine per child.
type Service struct {
	cfg         Config
	catalog     *Catalog
	onCompleted func(Completion)

	mu       sync.Mutex
	running  map[string]string // run id to process name
	finished map[string]models.ProcessResult
	counters map[string]uint64
	wg       sync.WaitGroup
}

// NewService builds a runner over the given catalog. onCompleted is
// invoked from the child's goroutine once per run.
func NewService(cfg Config, catalog *Catalog, onCompleted func(Completion)) *Service {
	return &Service{
		cfg:         cfg,
		catalog:     catalog,
		onCompleted: onCompleted,
		running:     make(map[string]string),
		finished:    make(map[string]models.ProcessResult),
		counters:    make(map[string]uint64),
	}
}

// Catalog returns the definitions backing the runner.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Submit resolves the request against the catalog, spawns the child and
// returns the run id. The result arrives through the completion
// callback.
func (s *Service) Submit(req models.ProcessRequest, executor models.UserInfo) (string, error) {
	entry, ok := s.catalog.Find(req.Name)
	if !ok {
		return "", models.NewServiceError(models.ErrorInvalidInput,
			fmt.Sprintf("process %q does not exist", req.Name))
	}

	executable := strings.ReplaceAll(entry.Executable, "<processes>", s.cfg.ProcessesDir)
	arguments := make([]string, len(entry.Arguments))
	copy(arguments, entry.Arguments)
	for key, value := range req.ArgumentValues {
		placeholder := "<" + key + ">"
		for i := range arguments {
			arguments[i] = strings.ReplaceAll(arguments[i], placeholder, value)
		}
	}

	workDir := filepath.Join(s.cfg.WorkDir, entry.Name)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		logger.Error("Failed to create process working directory", logger.Path(workDir), logger.Err(err))
		return "", models.NewServiceError(models.ErrorApplication, "internal application error")
	}

	id := uuid.NewString()
	env := append(os.Environ(),
		"CLOUD_PROCESS_WORK_DIR="+workDir,
		"CLOUD_PROCESS_RANGE_CA_DIR="+s.cfg.RangeCADir,
		"CLOUD_PROCESS_EXECUTOR="+executor.Name+":"+strings.Join(executor.GroupNames, ","),
		"CLOUD_PROCESS_OWNER="+entry.AccessRights.Owner.User+":"+entry.AccessRights.Owner.Group,
		"CLOUD_PROCESS_LOG_FILE="+filepath.Join(s.cfg.LogDir, fmt.Sprintf("%s-%s.log", entry.Name, executor.Name)),
	)

	s.mu.Lock()
	s.running[id] = entry.Name
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(id, entry.Name, executable, arguments, workDir, env, req)

	return id, nil
}

func (s *Service) run(id, name, executable string, arguments []string, workDir string, env []string, req models.ProcessRequest) {
	defer s.wg.Done()

	// Processes outlive the originating request, so the span roots a
	// fresh trace instead of hanging off the action's context.
	ctx, span := telemetry.StartProcessSpan(context.Background(), name, req.Executor,
		telemetry.ProcessID(id))
	defer span.End()

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(executable, arguments...)
	cmd.Dir = workDir
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := models.ProcessResult{Request: req}

	if err := cmd.Start(); err != nil {
		telemetry.RecordError(ctx, err)
		logger.Error("Process failed to start", "process", name, logger.RequestID(id), logger.Err(err))
		s.bumpCounter(name + "Errored")
		result.ErrorBuffer = "Child process failed."
		result.ErrorType = models.ErrorChildProcess
		s.complete(id, result)
		return
	}

	logger.Info("Process started",
		"process", name,
		logger.RequestID(id),
		"command", executable+" "+strings.Join(arguments, " "),
	)
	s.bumpCounter(name + "Started")

	err := cmd.Wait()
	result.OutputBuffer = stdout.String()
	result.ErrorBuffer = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ErrorType = models.ErrorNone
		s.bumpCounter(name + "Finished")
		telemetry.SetAttributes(ctx, telemetry.ProcessExitCode(0))
	case errors.As(err, &exitErr):
		result.ErrorType = models.ErrorChildProcess
		telemetry.RecordError(ctx, err)
		telemetry.SetAttributes(ctx, telemetry.ProcessExitCode(exitErr.ProcessState.ExitCode()))
		if exitErr.ProcessState.Exited() {
			s.bumpCounter(name + "Finished")
		} else {
			s.bumpCounter(name + "Crashed")
		}
		if result.ErrorBuffer == "" {
			result.ErrorBuffer = "Child process failed."
		}
	default:
		result.ErrorType = models.ErrorChildProcess
		telemetry.RecordError(ctx, err)
		s.bumpCounter(name + "Errored")
		if result.ErrorBuffer == "" {
			result.ErrorBuffer = "Child process failed."
		}
	}

	logger.Info("Process finished",
		"process", name,
		logger.RequestID(id),
		logger.ErrorType(string(result.ErrorType)),
	)
	s.complete(id, result)
}

func (s *Service) complete(id string, result models.ProcessResult) {
	s.mu.Lock()
	name := s.running[id]
	delete(s.running, id)
	s.finished[id] = result
	s.mu.Unlock()

	metrics.ProcessesTotal.WithLabelValues(name, string(result.ErrorType)).Inc()
	if s.onCompleted != nil {
		s.onCompleted(Completion{RequestID: id, Result: result})
	}
}

func (s *Service) bumpCounter(key string) {
	s.mu.Lock()
	s.counters[key]++
	s.mu.Unlock()
}

// Finalize drops a finished run from memory. Called by the dispatcher
// after the reply has been emitted.
func (s *Service) Finalize(id string) {
	s.mu.Lock()
	delete(s.finished, id)
	s.mu.Unlock()
}

// Pending reports the number of running plus unfinalized runs.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running) + len(s.finished)
}

// Wait blocks until every spawned child has completed.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Statistics returns the runner's counters.
func (s *Service) Statistics() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]any{
		"service":   "processManager",
		"processes": len(s.catalog.entries),
	}
	for key, n := range s.counters {
		stats[key] = n
	}
	return stats
}
