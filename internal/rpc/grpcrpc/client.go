package grpcrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rulecluster/internal/rpc"
	"rulecluster/internal/scheduler"
	"rulecluster/pkg/logx"
)

// Resolver maps a logical address to a dial target.
type Resolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

type FactoryConfig struct {
	// CallTimeout bounds every unary call. Streams are bounded by the
	// caller's context only. Zero disables the bound.
	CallTimeout time.Duration
}

// Factory binds logical addresses to gRPC connections.
type Factory struct {
	resolver Resolver
	cfg      FactoryConfig
	log      logx.Logger
	dialOpts []grpc.DialOption
}

var _ rpc.Factory = (*Factory)(nil)

func NewFactory(resolver Resolver, cfg FactoryConfig, log logx.Logger, opts ...grpc.DialOption) *Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Factory{
		resolver: resolver,
		cfg:      cfg,
		log:      log.With(logx.String("comp", "grpc-factory")),
		dialOpts: opts,
	}
}

func (f *Factory) CreateConsumer(ctx context.Context, address string) (rpc.Binding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := f.resolver.Resolve(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, f.dialOpts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	f.log.Debug("consumer created", logx.String("address", address), logx.String("target", target))
	b := &binding{conn: conn}
	b.svc = &client{b: b, address: address, callTimeout: f.cfg.CallTimeout}
	return b, nil
}

type binding struct {
	conn     *grpc.ClientConn
	svc      *client
	disposed atomic.Bool
}

func (b *binding) Service() rpc.SchedulerService { return b.svc }
func (b *binding) IsDisposed() bool              { return b.disposed.Load() }

func (b *binding) Dispose() error {
	if !b.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return b.conn.Close()
}

// client is the SchedulerService stub of one binding.
type client struct {
	b           *binding
	address     string
	callTimeout time.Duration
}

func (c *client) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, addressKey, c.address)
}

func (c *client) translate(err error) error {
	if err == nil {
		return nil
	}
	if c.b.disposed.Load() {
		return rpc.ErrDisposed
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", rpc.ErrTimeout, err)
	case codes.NotFound:
		if strings.HasPrefix(status.Convert(err).Message(), notFoundMessage) {
			return fmt.Errorf("%w: %w", rpc.ErrServiceNotFound, err)
		}
	}
	return err
}

func (c *client) invoke(ctx context.Context, name string, in, out any) error {
	if c.b.disposed.Load() {
		return rpc.ErrDisposed
	}
	ctx = c.outgoing(ctx)
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.translate(c.b.conn.Invoke(ctx, fullMethod(name), in, out))
}

func recvStream[Out any](c *client, ctx context.Context, name string, in any) iter.Seq2[Out, error] {
	return func(yield func(Out, error) bool) {
		var zero Out
		if c.b.disposed.Load() {
			yield(zero, rpc.ErrDisposed)
			return
		}
		ctx, cancel := context.WithCancel(c.outgoing(ctx))
		defer cancel()

		desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}
		cs, err := c.b.conn.NewStream(ctx, desc, fullMethod(name))
		if err != nil {
			yield(zero, c.translate(err))
			return
		}
		// io.EOF from SendMsg means the real status comes from RecvMsg.
		if err := cs.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
			yield(zero, c.translate(err))
			return
		}
		if err := cs.CloseSend(); err != nil {
			yield(zero, c.translate(err))
			return
		}
		for {
			var v Out
			if err := cs.RecvMsg(&v); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(zero, c.translate(err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (c *client) GetWorkers(ctx context.Context) iter.Seq2[rpc.WorkerInfo, error] {
	return recvStream[rpc.WorkerInfo](c, ctx, mGetWorkers, &empty{})
}

func (c *client) GetWorker(ctx context.Context, workerID string) (rpc.WorkerInfo, bool, error) {
	var out workerReply
	if err := c.invoke(ctx, mGetWorker, &workerRequest{WorkerID: workerID}, &out); err != nil {
		return rpc.WorkerInfo{}, false, err
	}
	if !out.Found {
		return rpc.WorkerInfo{}, false, nil
	}
	return rpc.WorkerInfo{ID: out.ID, Name: out.Name}, true, nil
}

func (c *client) Schedule(ctx context.Context, job scheduler.ScheduleJob) iter.Seq2[rpc.TaskInfo, error] {
	return recvStream[rpc.TaskInfo](c, ctx, mSchedule, &jobRequest{Job: job})
}

func (c *client) GetSchedulingTask(ctx context.Context, instanceID string) iter.Seq2[rpc.TaskInfo, error] {
	return recvStream[rpc.TaskInfo](c, ctx, mGetSchedulingTask, &instanceRequest{InstanceID: instanceID})
}

func (c *client) GetSchedulingTasks(ctx context.Context) iter.Seq2[rpc.TaskInfo, error] {
	return recvStream[rpc.TaskInfo](c, ctx, mGetSchedulingTasks, &empty{})
}

func (c *client) Shutdown(ctx context.Context, instanceID string) error {
	return c.invoke(ctx, mShutdown, &instanceRequest{InstanceID: instanceID}, &empty{})
}

func (c *client) TotalTask(ctx context.Context) (int64, bool, error) {
	var out totalReply
	if err := c.invoke(ctx, mTotalTask, &empty{}, &out); err != nil {
		return 0, false, err
	}
	return out.Total, out.Present, nil
}

func (c *client) CanSchedule(ctx context.Context, job scheduler.ScheduleJob) (bool, error) {
	var out boolReply
	err := c.invoke(ctx, mCanSchedule, &jobRequest{Job: job}, &out)
	return out.Value, err
}

func (c *client) IsAlive(ctx context.Context) (bool, error) {
	var out boolReply
	err := c.invoke(ctx, mIsAlive, &empty{}, &out)
	return out.Value, err
}

func (c *client) CreateTask(ctx context.Context, workerID, schedulerID string, job scheduler.ScheduleJob) (rpc.TaskInfo, error) {
	var out rpc.TaskInfo
	err := c.invoke(ctx, mCreateTask, &createTaskRequest{WorkerID: workerID, SchedulerID: schedulerID, Job: job}, &out)
	return out, err
}

func (c *client) SupportedExecutors(ctx context.Context, workerID string) iter.Seq2[string, error] {
	src := recvStream[stringReply](c, ctx, mSupportedExecutors, &workerRequest{WorkerID: workerID})
	return rpc.MapStream(src, func(r stringReply) string { return r.Value })
}

func (c *client) WorkerState(ctx context.Context, workerID string) (scheduler.WorkerState, error) {
	var out workerStateReply
	err := c.invoke(ctx, mWorkerState, &workerRequest{WorkerID: workerID}, &out)
	return out.State, err
}

func (c *client) TaskOperation(ctx context.Context, taskID string, op scheduler.TaskOperation) error {
	return c.invoke(ctx, mTaskOperation, &taskOpRequest{TaskID: taskID, Op: op}, &empty{})
}

func (c *client) SetTaskJob(ctx context.Context, taskID string, job scheduler.ScheduleJob) error {
	return c.invoke(ctx, mSetTaskJob, &setJobRequest{TaskID: taskID, Job: job}, &empty{})
}

func (c *client) ExecuteTask(ctx context.Context, taskID string, data scheduler.RuleData) error {
	return c.invoke(ctx, mExecuteTask, &executeRequest{TaskID: taskID, Data: data}, &empty{})
}

func (c *client) TaskState(ctx context.Context, taskID string) (scheduler.TaskState, error) {
	var out taskStateReply
	err := c.invoke(ctx, mTaskState, &taskRequest{TaskID: taskID}, &out)
	return out.State, err
}

func (c *client) TaskLastStateTime(ctx context.Context, taskID string) (time.Time, error) {
	var out timeReply
	err := c.invoke(ctx, mTaskLastStateTime, &taskRequest{TaskID: taskID}, &out)
	return out.Time, err
}

func (c *client) TaskStartTime(ctx context.Context, taskID string) (time.Time, error) {
	var out timeReply
	err := c.invoke(ctx, mTaskStartTime, &taskRequest{TaskID: taskID}, &out)
	return out.Time, err
}
