// Package dispatch implements the action dispatcher: the single router
// between the listeners and the backing services. All actions funnel
// through one event-loop goroutine, so the catalogs it owns need no
// locking, and replies for asynchronous file and process work are
// correlated back to the originating action.
package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/catalog"
	"github.com/rangelabs/rangecloud/pkg/directory"
	"github.com/rangelabs/rangecloud/pkg/filestore"
	"github.com/rangelabs/rangecloud/pkg/mailer"
	"github.com/rangelabs/rangecloud/pkg/metrics"
	"github.com/rangelabs/rangecloud/pkg/models"
	"github.com/rangelabs/rangecloud/pkg/process"
	"github.com/rangelabs/rangecloud/pkg/report"
)

// Services are the backing components the dispatcher routes to.
type Services struct {
	Directory *directory.Directory
	Actions   *catalog.Catalog
	Files     *filestore.Service
	Processes *process.Service
	Reports   *report.Archive
	Mail      *mailer.Mailer
}

// Config carries the dispatcher's own settings.
type Config struct {
	Version string
}

type resolveEvent struct {
	action models.Action
	from   string
	reply  chan models.Action
}

type fileEvent filestore.Completion

type processEvent process.Completion

type pendingRequest struct {
	action models.Action
	reply  chan models.Action

	// taskType is set for file requests; retrieval replies need their
	// content re-encoded for the wire.
	taskType filestore.TaskType
}

// Dispatcher routes actions to services and correlates asynchronous
// completions back to their callers.
type Dispatcher struct {
	cfg       Config
	svc       Services
	startTime time.Time

	// OnStop, when set, is invoked once after a stop action resolves.
	OnStop func()

	inbox chan any
	done  chan struct{}

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once

	// Event-loop confined.
	fileRequests    map[string]pendingRequest
	processRequests map[string]pendingRequest
}

// New builds a dispatcher over the given services. Call Start before
// resolving.
func New(cfg Config, svc Services) *Dispatcher {
	return &Dispatcher{
		cfg:             cfg,
		svc:             svc,
		startTime:       time.Now(),
		inbox:           make(chan any, 256),
		done:            make(chan struct{}),
		fileRequests:    make(map[string]pendingRequest),
		processRequests: make(map[string]pendingRequest),
	}
}

// Start launches the event loop.
func (d *Dispatcher) Start() {
	go d.run()
	logger.Info("Dispatcher started", "version", d.cfg.Version)
}

// Stop shuts the event loop down after draining queued events. Safe to
// call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.inbox)
		<-d.done
		logger.Info("Dispatcher stopped")
	})
}

// post delivers an event to the loop unless the dispatcher is stopped.
func (d *Dispatcher) post(ev any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.inbox <- ev
	return true
}

// Resolve routes one action and blocks until its reply is available or
// the context expires.
func (d *Dispatcher) Resolve(ctx context.Context, action models.Action, from string) (models.Action, error) {
	reply := make(chan models.Action, 1)
	if !d.post(resolveEvent{action: action, from: from, reply: reply}) {
		return models.Action{}, fmt.Errorf("dispatcher is stopped")
	}
	select {
	case resolved := <-reply:
		return resolved, nil
	case <-ctx.Done():
		return models.Action{}, ctx.Err()
	}
}

// FileCompleted is the file service's completion callback.
func (d *Dispatcher) FileCompleted(c filestore.Completion) {
	if !d.post(fileEvent(c)) {
		logger.Warn("File completion dropped, dispatcher stopped", logger.RequestID(c.RequestID))
	}
}

// ProcessCompleted is the process runner's completion callback.
func (d *Dispatcher) ProcessCompleted(c process.Completion) {
	if !d.post(processEvent(c)) {
		logger.Warn("Process completion dropped, dispatcher stopped", logger.RequestID(c.RequestID))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.inbox {
		switch e := ev.(type) {
		case resolveEvent:
			d.handleResolve(e)
		case fileEvent:
			d.handleFileCompletion(filestore.Completion(e))
		case processEvent:
			d.handleProcessCompletion(process.Completion(e))
		}
	}
}

// emit sends the resolved reply and records the outcome.
func (d *Dispatcher) emit(reply chan models.Action, resolved models.Action) {
	d.svc.Actions.RecordInvocation(resolved.Name)
	metrics.ActionsTotal.WithLabelValues(resolved.Name, string(resolved.ErrorType)).Inc()
	if resolved.IsError() {
		logger.Warn("Action resolved with error",
			logger.ActionName(resolved.Name),
			logger.ActionID(resolved.ID),
			logger.Executor(resolved.Executor),
			logger.ErrorType(string(resolved.ErrorType)),
		)
	} else {
		logger.Debug("Action resolved",
			logger.ActionName(resolved.Name),
			logger.ActionID(resolved.ID),
			logger.Executor(resolved.Executor),
		)
	}
	reply <- resolved
}

func (d *Dispatcher) handleResolve(e resolveEvent) {
	a := e.action
	if a.Executor == "" {
		a.Executor = models.GuestUserName
	}
	logger.Debug("Resolving action",
		logger.ActionName(a.Name),
		logger.ActionID(a.ID),
		logger.Executor(a.Executor),
		"from", e.from,
	)

	executor, ok := d.svc.Directory.FindUser(a.Executor)
	if !ok {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("user %q does not exist", a.Executor)))
		return
	}
	if !d.svc.Actions.Contains(a.Name) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorInvalidInput,
			fmt.Sprintf("unknown action %q", a.Name)))
		return
	}
	if !d.svc.Actions.AuthorizeUser(executor, a.Name) {
		d.emit(e.reply, *a.ErrorReply(models.ErrorUnauthorized,
			fmt.Sprintf("user %q is not authorized to execute %q", a.Executor, a.Name)))
		return
	}

	d.route(e, a, executor)
}

func (d *Dispatcher) handleFileCompletion(c filestore.Completion) {
	p, ok := d.fileRequests[c.RequestID]
	if !ok {
		logger.Warn("Unmatched file completion", logger.RequestID(c.RequestID))
		return
	}
	delete(d.fileRequests, c.RequestID)

	obj := c.Object
	if obj.ErrorType != models.ErrorNone {
		d.emit(p.reply, *p.action.ErrorReply(obj.ErrorType, string(obj.Content)))
		return
	}
	data := string(obj.Content)
	if p.taskType == filestore.TaskRetrieveFile {
		// File bytes are arbitrary; JSON strings are not.
		data = base64.StdEncoding.EncodeToString(obj.Content)
	}
	resolved := p.action.Reply(data, models.ErrorNone)
	resolved.ResourceID = obj.Info.ID
	d.emit(p.reply, *resolved)
}

func (d *Dispatcher) handleProcessCompletion(c process.Completion) {
	defer d.svc.Processes.Finalize(c.RequestID)

	p, ok := d.processRequests[c.RequestID]
	if !ok {
		logger.Warn("Unmatched process completion", logger.RequestID(c.RequestID))
		return
	}
	delete(d.processRequests, c.RequestID)

	result := c.Result
	if result.ErrorType != models.ErrorNone {
		diagnostic := result.ErrorBuffer
		if diagnostic == "" {
			diagnostic = "process failed"
		}
		d.emit(p.reply, *p.action.ErrorReply(result.ErrorType, diagnostic))
		return
	}
	response := models.ProcessResponse{
		Request:         result.Request,
		ResponseMessage: result.OutputBuffer,
	}
	d.jsonReply(p.reply, p.action, response)
}
