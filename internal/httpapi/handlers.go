package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rulecluster/internal/cluster"
	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
	"rulecluster/internal/storage"
	"rulecluster/pkg/logx"
)

const (
	defaultProbeLimit = 50
	maxProbeLimit     = 1000
)

type workerView struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	State     scheduler.WorkerState `json:"state,omitempty"`
	Executors []string              `json:"executors,omitempty"`
}

type taskView struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	WorkerID      string                 `json:"workerId"`
	SchedulerID   string                 `json:"schedulerId"`
	Job           *scheduler.ScheduleJob `json:"job,omitempty"`
	State         scheduler.TaskState    `json:"state,omitempty"`
	LastStateTime *time.Time             `json:"lastStateTime,omitempty"`
	StartTime     *time.Time             `json:"startTime,omitempty"`
}

func newTaskView(t scheduler.Task) taskView {
	return taskView{
		ID:          t.ID(),
		Name:        t.Name(),
		WorkerID:    t.WorkerID(),
		SchedulerID: t.SchedulerID(),
		Job:         t.Job(),
	}
}

func (a *API) health(c *gin.Context) {
	out := gin.H{"ok": true, "schedulers": len(a.deps.Schedulers.IDs())}
	if a.deps.Health != nil {
		out["process"] = a.deps.Health()
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) listSchedulers(c *gin.Context) {
	type row struct {
		ID      string `json:"id"`
		Address string `json:"address"`
		Alive   *bool  `json:"alive,omitempty"`
		Checked string `json:"checked,omitempty"`
	}
	ids := a.deps.Schedulers.IDs()
	out := make([]row, 0, len(ids))
	for _, id := range ids {
		r := row{ID: id, Address: cluster.Address(id)}
		if a.deps.Monitor != nil {
			if st, ok := a.deps.Monitor.Status(id); ok && !st.LastProbe.IsZero() {
				alive := st.Alive
				r.Alive = &alive
				r.Checked = st.LastProbe.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"schedulers": out})
}

// scheduler resolves :id or writes a 404.
func (a *API) scheduler(c *gin.Context) (*cluster.RemoteScheduler, bool) {
	id := c.Param("id")
	s, ok := a.deps.Schedulers.Get(id)
	if !ok {
		notFound(c, "scheduler "+strconv.Quote(id))
		return nil, false
	}
	return s, true
}

func (a *API) alive(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	alive, err := s.IsAlive(c.Request.Context())
	out := gin.H{"id": s.ID(), "alive": alive}
	if err != nil {
		out["error"] = err.Error()
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) listWorkers(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	out := []workerView{}
	for w, err := range s.GetWorkers(c.Request.Context()) {
		if err != nil {
			fail(c, err)
			return
		}
		out = append(out, workerView{ID: w.ID(), Name: w.Name()})
	}
	c.JSON(http.StatusOK, gin.H{"workers": out})
}

// worker resolves :worker on s or writes an error response.
func (a *API) worker(c *gin.Context, s *cluster.RemoteScheduler) (scheduler.Worker, bool) {
	id := c.Param("worker")
	w, found, err := s.GetWorker(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if !found {
		notFound(c, "worker "+strconv.Quote(id))
		return nil, false
	}
	return w, true
}

func (a *API) getWorker(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	w, ok := a.worker(c, s)
	if !ok {
		return
	}
	st, err := w.State(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, workerView{ID: w.ID(), Name: w.Name(), State: st})
}

func (a *API) workerExecutors(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	w, ok := a.worker(c, s)
	if !ok {
		return
	}
	execs, err := rpc.Collect(w.SupportedExecutors(c.Request.Context()))
	if err != nil {
		fail(c, err)
		return
	}
	if execs == nil {
		execs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"executors": execs})
}

func (a *API) createTask(c *gin.Context) {
	start := time.Now()
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	var job scheduler.ScheduleJob
	if err := c.ShouldBindJSON(&job); err != nil {
		badRequest(c, err)
		return
	}
	w, ok := a.worker(c, s)
	if !ok {
		return
	}
	t, err := w.CreateTask(c.Request.Context(), s.ID(), job)
	a.audit(c, "worker.create_task", s.ID(), w.ID(), start, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTaskView(t))
}

func (a *API) listTasks(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	seq := s.GetSchedulingTasks(ctx)
	if inst := c.Query("instance"); inst != "" {
		seq = s.GetSchedulingTask(ctx, inst)
	}
	out := []taskView{}
	for t, err := range seq {
		if err != nil {
			fail(c, err)
			return
		}
		out = append(out, newTaskView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

func (a *API) totalTask(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	n, err := s.TotalTask(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

// findTask scans the scheduler's tasks for id. It stops the stream on a hit.
func findTask(ctx context.Context, s *cluster.RemoteScheduler, id string) (scheduler.Task, error) {
	for t, err := range s.GetSchedulingTasks(ctx) {
		if err != nil {
			return nil, err
		}
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, nil
}

func (a *API) task(c *gin.Context, s *cluster.RemoteScheduler) (scheduler.Task, bool) {
	id := c.Param("task")
	t, err := findTask(c.Request.Context(), s, id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if t == nil {
		notFound(c, "task "+strconv.Quote(id))
		return nil, false
	}
	return t, true
}

func (a *API) getTask(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	t, ok := a.task(c, s)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	v := newTaskView(t)
	st, err := t.State(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	v.State = st
	if ts, err := t.LastStateTime(ctx); err == nil && !ts.IsZero() {
		v.LastStateTime = &ts
	}
	if ts, err := t.StartTime(ctx); err == nil && !ts.IsZero() {
		v.StartTime = &ts
	}
	c.JSON(http.StatusOK, v)
}

// taskOperation runs a lifecycle op on one task. "execute" pushes the
// request body as RuleData; "job" replaces the task definition.
func (a *API) taskOperation(c *gin.Context) {
	start := time.Now()
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	name := c.Param("op")

	var run func(ctx context.Context, t scheduler.Task) error
	switch name {
	case "execute":
		var data scheduler.RuleData
		if err := c.ShouldBindJSON(&data); err != nil {
			badRequest(c, err)
			return
		}
		run = func(ctx context.Context, t scheduler.Task) error { return t.Execute(ctx, data) }
	case "job":
		var job scheduler.ScheduleJob
		if err := c.ShouldBindJSON(&job); err != nil {
			badRequest(c, err)
			return
		}
		run = func(ctx context.Context, t scheduler.Task) error { return t.SetJob(ctx, job) }
	default:
		op, ok := scheduler.ParseTaskOperation(name)
		if !ok {
			badRequest(c, errors.New("unknown task operation: "+name))
			return
		}
		run = func(ctx context.Context, t scheduler.Task) error { return applyOp(ctx, t, op) }
	}

	t, ok := a.task(c, s)
	if !ok {
		return
	}
	err := run(c.Request.Context(), t)
	a.audit(c, "task."+name, s.ID(), t.ID(), start, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": t.ID(), "op": name, "ok": true})
}

func applyOp(ctx context.Context, t scheduler.Task, op scheduler.TaskOperation) error {
	switch op {
	case scheduler.OpStart:
		return t.Start(ctx)
	case scheduler.OpPause:
		return t.Pause(ctx)
	case scheduler.OpReload:
		return t.Reload(ctx)
	case scheduler.OpShutdown:
		return t.Shutdown(ctx)
	case scheduler.OpEnableDebug:
		return t.Debug(ctx, true)
	case scheduler.OpDisableDebug:
		return t.Debug(ctx, false)
	}
	return errors.New("unsupported operation: " + string(op))
}

func (a *API) schedule(c *gin.Context) {
	start := time.Now()
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	var job scheduler.ScheduleJob
	if err := c.ShouldBindJSON(&job); err != nil {
		badRequest(c, err)
		return
	}
	out := []taskView{}
	var err error
	for t, e := range s.Schedule(c.Request.Context(), job) {
		if e != nil {
			err = e
			break
		}
		out = append(out, newTaskView(t))
	}
	a.audit(c, "job.schedule", s.ID(), job.InstanceID, start, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": out})
}

func (a *API) canSchedule(c *gin.Context) {
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	var job scheduler.ScheduleJob
	if err := c.ShouldBindJSON(&job); err != nil {
		badRequest(c, err)
		return
	}
	yes, err := s.CanSchedule(c.Request.Context(), job)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canSchedule": yes})
}

func (a *API) shutdown(c *gin.Context) {
	start := time.Now()
	s, ok := a.scheduler(c)
	if !ok {
		return
	}
	inst := c.Param("instance")
	err := s.Shutdown(c.Request.Context(), inst)
	a.audit(c, "instance.shutdown", s.ID(), inst, start, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance": inst, "ok": true})
}

func (a *API) probes(c *gin.Context) {
	id := c.Param("id")
	if _, ok := a.deps.Schedulers.Get(id); !ok {
		notFound(c, "scheduler "+strconv.Quote(id))
		return
	}
	if a.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": storage.ErrDisabled.Error()})
		return
	}
	limit := defaultProbeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxProbeLimit)
	}
	recs, err := a.deps.Store.RecentProbes(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []storage.ProbeRecord{}
	}
	out := gin.H{"probes": recs}
	if a.deps.Monitor != nil {
		if st, ok := a.deps.Monitor.Status(id); ok {
			out["status"] = st
		}
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) audit(c *gin.Context, action, schedulerID, target string, start time.Time, err error) {
	e := storage.AuditEntry{
		At:          time.Now().UTC(),
		RequestID:   c.GetString(ctxRequestID),
		Remote:      c.ClientIP(),
		Action:      action,
		SchedulerID: schedulerID,
		Target:      target,
		OK:          err == nil,
		TookMS:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.log.Info("operator action",
		logx.String("action", action),
		logx.String("scheduler", schedulerID),
		logx.String("target", target),
		logx.Bool("ok", e.OK),
		logx.String("request_id", e.RequestID),
		logx.Err(err),
	)
	if a.deps.Store == nil {
		return
	}
	// The request context may already be canceled by the client.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
	defer cancel()
	if aerr := a.deps.Store.AppendAudit(ctx, e); aerr != nil {
		a.log.Warn("audit append failed", logx.Err(aerr))
	}
}
