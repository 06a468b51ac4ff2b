package grpcrpc

import (
	"context"
	"iter"

	"google.golang.org/grpc"

	"rulecluster/internal/rpc"
)

const (
	serviceName = "rulecluster.rpc.SchedulerService"
	addressKey  = "x-service-address"

	notFoundMessage = "service not found: "
)

const (
	mGetWorkers         = "GetWorkers"
	mGetWorker          = "GetWorker"
	mSchedule           = "Schedule"
	mGetSchedulingTask  = "GetSchedulingTask"
	mGetSchedulingTasks = "GetSchedulingTasks"
	mShutdown           = "Shutdown"
	mTotalTask          = "TotalTask"
	mCanSchedule        = "CanSchedule"
	mIsAlive            = "IsAlive"
	mCreateTask         = "CreateTask"
	mSupportedExecutors = "SupportedExecutors"
	mWorkerState        = "WorkerState"
	mTaskOperation      = "TaskOperation"
	mSetTaskJob         = "SetTaskJob"
	mExecuteTask        = "ExecuteTask"
	mTaskState          = "TaskState"
	mTaskLastStateTime  = "TaskLastStateTime"
	mTaskStartTime      = "TaskStartTime"
)

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// Host resolves the service addressed by an incoming call.
type Host interface {
	Lookup(ctx context.Context) (rpc.SchedulerService, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Host)(nil),
	Methods: []grpc.MethodDesc{
		unary(mGetWorker, func(ctx context.Context, svc rpc.SchedulerService, in *workerRequest) (any, error) {
			w, ok, err := svc.GetWorker(ctx, in.WorkerID)
			if err != nil {
				return nil, err
			}
			return &workerReply{ID: w.ID, Name: w.Name, Found: ok}, nil
		}),
		unary(mShutdown, func(ctx context.Context, svc rpc.SchedulerService, in *instanceRequest) (any, error) {
			return &empty{}, svc.Shutdown(ctx, in.InstanceID)
		}),
		unary(mTotalTask, func(ctx context.Context, svc rpc.SchedulerService, _ *empty) (any, error) {
			n, ok, err := svc.TotalTask(ctx)
			if err != nil {
				return nil, err
			}
			return &totalReply{Total: n, Present: ok}, nil
		}),
		unary(mCanSchedule, func(ctx context.Context, svc rpc.SchedulerService, in *jobRequest) (any, error) {
			ok, err := svc.CanSchedule(ctx, in.Job)
			if err != nil {
				return nil, err
			}
			return &boolReply{Value: ok}, nil
		}),
		unary(mIsAlive, func(ctx context.Context, svc rpc.SchedulerService, _ *empty) (any, error) {
			ok, err := svc.IsAlive(ctx)
			if err != nil {
				return nil, err
			}
			return &boolReply{Value: ok}, nil
		}),
		unary(mCreateTask, func(ctx context.Context, svc rpc.SchedulerService, in *createTaskRequest) (any, error) {
			info, err := svc.CreateTask(ctx, in.WorkerID, in.SchedulerID, in.Job)
			if err != nil {
				return nil, err
			}
			return &info, nil
		}),
		unary(mWorkerState, func(ctx context.Context, svc rpc.SchedulerService, in *workerRequest) (any, error) {
			st, err := svc.WorkerState(ctx, in.WorkerID)
			if err != nil {
				return nil, err
			}
			return &workerStateReply{State: st}, nil
		}),
		unary(mTaskOperation, func(ctx context.Context, svc rpc.SchedulerService, in *taskOpRequest) (any, error) {
			return &empty{}, svc.TaskOperation(ctx, in.TaskID, in.Op)
		}),
		unary(mSetTaskJob, func(ctx context.Context, svc rpc.SchedulerService, in *setJobRequest) (any, error) {
			return &empty{}, svc.SetTaskJob(ctx, in.TaskID, in.Job)
		}),
		unary(mExecuteTask, func(ctx context.Context, svc rpc.SchedulerService, in *executeRequest) (any, error) {
			return &empty{}, svc.ExecuteTask(ctx, in.TaskID, in.Data)
		}),
		unary(mTaskState, func(ctx context.Context, svc rpc.SchedulerService, in *taskRequest) (any, error) {
			st, err := svc.TaskState(ctx, in.TaskID)
			if err != nil {
				return nil, err
			}
			return &taskStateReply{State: st}, nil
		}),
		unary(mTaskLastStateTime, func(ctx context.Context, svc rpc.SchedulerService, in *taskRequest) (any, error) {
			ts, err := svc.TaskLastStateTime(ctx, in.TaskID)
			if err != nil {
				return nil, err
			}
			return &timeReply{Time: ts}, nil
		}),
		unary(mTaskStartTime, func(ctx context.Context, svc rpc.SchedulerService, in *taskRequest) (any, error) {
			ts, err := svc.TaskStartTime(ctx, in.TaskID)
			if err != nil {
				return nil, err
			}
			return &timeReply{Time: ts}, nil
		}),
	},
	Streams: []grpc.StreamDesc{
		serverStream(mGetWorkers, func(ctx context.Context, svc rpc.SchedulerService, _ *empty) iter.Seq2[rpc.WorkerInfo, error] {
			return svc.GetWorkers(ctx)
		}),
		serverStream(mSchedule, func(ctx context.Context, svc rpc.SchedulerService, in *jobRequest) iter.Seq2[rpc.TaskInfo, error] {
			return svc.Schedule(ctx, in.Job)
		}),
		serverStream(mGetSchedulingTask, func(ctx context.Context, svc rpc.SchedulerService, in *instanceRequest) iter.Seq2[rpc.TaskInfo, error] {
			return svc.GetSchedulingTask(ctx, in.InstanceID)
		}),
		serverStream(mGetSchedulingTasks, func(ctx context.Context, svc rpc.SchedulerService, _ *empty) iter.Seq2[rpc.TaskInfo, error] {
			return svc.GetSchedulingTasks(ctx)
		}),
		serverStream(mSupportedExecutors, func(ctx context.Context, svc rpc.SchedulerService, in *workerRequest) iter.Seq2[stringReply, error] {
			return rpc.MapStream(svc.SupportedExecutors(ctx, in.WorkerID), func(s string) stringReply { return stringReply{Value: s} })
		}),
	},
	Metadata: "rulecluster/rpc/scheduler",
}

func unary[Req any](name string, call func(ctx context.Context, svc rpc.SchedulerService, in *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				svc, err := srv.(Host).Lookup(ctx)
				if err != nil {
					return nil, err
				}
				out, err := call(ctx, svc, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serverStream[Req, Out any](name string, open func(ctx context.Context, svc rpc.SchedulerService, in *Req) iter.Seq2[Out, error]) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			ctx := stream.Context()
			svc, err := srv.(Host).Lookup(ctx)
			if err != nil {
				return err
			}
			for v, err := range open(ctx, svc, in) {
				if err != nil {
					return toStatus(err)
				}
				if err := stream.SendMsg(&v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
