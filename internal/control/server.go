package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/MesserLab/slimgo/internal/telemetry"
)

// serviceName is the gRPC full service name RPCs are registered and dispatched
// under, playing the role protoc-gen-go-grpc's pb.Federator_ServiceDesc.ServiceName
// constant plays in federation_server.go.
const serviceName = "slimgo.control.SimulationControl"

// Server implements the SimulationControl gRPC service: a thin adapter sequencing
// validation, rate limiting / replay checks, and calls into Engine, in the same
// shape as evolution_server.go's EvolutionServer methods.
type Server struct {
	engine      *Engine
	rateLimiter *RateLimiter
	replayGuard *ReplayGuard
}

// NewServer builds a control server driving engine, rate-limiting Step calls to
// stepRPM per caller.
func NewServer(engine *Engine, stepRPM int) *Server {
	return &Server{
		engine:      engine,
		rateLimiter: NewRateLimiter(stepRPM),
		replayGuard: NewReplayGuard(time.Hour),
	}
}

func callerID(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// Step advances the simulation, per spec §6's remote-control surface.
func (s *Server) Step(ctx context.Context, req *StepRequest) (*StepResponse, error) {
	if req.Generations <= 0 {
		return nil, status.Error(codes.InvalidArgument, "generations must be >= 1")
	}
	if !s.rateLimiter.Allow(callerID(ctx)) {
		return nil, status.Error(codes.ResourceExhausted, "step rate limit exceeded")
	}

	gen, err := s.engine.Step(ctx, req.Generations)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "step: %v", err)
	}
	return &StepResponse{Generation: gen}, nil
}

// GetStatus reports engine-wide state.
func (s *Server) GetStatus(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	resp := s.engine.Status()
	return &resp, nil
}

// GetPopulationSnapshot reports demographic state for one or every subpopulation.
func (s *Server) GetPopulationSnapshot(ctx context.Context, req *PopulationSnapshotRequest) (*PopulationSnapshotResponse, error) {
	resp := s.engine.Snapshot(req.SubpopulationID)
	return &resp, nil
}

// Checkpoint saves or restores the engine's population, per SPEC_FULL.md §2.2's
// rate-limiting/replay-guard note: a restore's nonce is checked against the replay
// guard before anything is touched.
func (s *Server) Checkpoint(ctx context.Context, req *CheckpointRequest) (*CheckpointResponse, error) {
	if req.Path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	switch req.Mode {
	case CheckpointSave:
		if err := s.engine.Save(req.Path, req.Format); err != nil {
			return nil, status.Errorf(codes.Internal, "checkpoint save: %v", err)
		}
		return &CheckpointResponse{Generation: s.engine.Driver.Generation}, nil

	case CheckpointRestore:
		if req.Nonce == "" {
			return nil, status.Error(codes.InvalidArgument, "nonce is required for restore")
		}
		if !s.replayGuard.Check(req.Nonce) {
			return nil, status.Error(codes.AlreadyExists, "replayed checkpoint-restore request")
		}
		gen, err := s.engine.Restore(req.Path, req.Format)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "checkpoint restore: %v", err)
		}
		return &CheckpointResponse{Generation: gen}, nil

	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown checkpoint mode %d", req.Mode)
	}
}

// serviceDesc wires Server's methods into grpc's dispatch table by hand, the role
// protoc-gen-go-grpc's generated _ServiceDesc plays for pb.RegisterFederatorServer
// in federation_server.go — this package has no generated pb package (see pb.go),
// so the method table is written out directly instead.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Step", Handler: stepHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "GetPopulationSnapshot", Handler: getPopulationSnapshotHandler},
		{MethodName: "Checkpoint", Handler: checkpointHandler},
	},
}

func stepHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StepRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.Step(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/Step"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.Step(ctx, req.(*StepRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.GetStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/GetStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getPopulationSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PopulationSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.GetPopulationSnapshot(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/GetPopulationSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.GetPopulationSnapshot(ctx, req.(*PopulationSnapshotRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func checkpointHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CheckpointRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.Checkpoint(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/Checkpoint"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.Checkpoint(ctx, req.(*CheckpointRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// loggingInterceptor logs every unary RPC's method, outcome, and duration,
// adapted from federation_server.go's loggingInterceptor but emitting structured
// zap fields instead of a log.Printf line.
func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger := telemetry.Named("control")
	if err != nil {
		logger.Sugar().Infow("rpc", "method", info.FullMethod, "status", "error", "duration", time.Since(start), "error", err)
	} else {
		logger.Sugar().Infow("rpc", "method", info.FullMethod, "status", "ok", "duration", time.Since(start))
	}
	return resp, err
}

// ListenAndServe registers the control server on a grpc.Server bound to addr and
// serves until ctx is canceled or a SIGINT/SIGTERM arrives, then stops gracefully
// — the same signal-driven shutdown federation_server.go's main performs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	grpcServer.RegisterService(&serviceDesc, s)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- grpcServer.Serve(lis) }()

	telemetry.Named("control").Sugar().Infow("control server listening", "addr", addr)

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return <-done
	case <-sigCh:
		telemetry.Named("control").Info("shutting down control server")
		grpcServer.GracefulStop()
		return <-done
	case err := <-done:
		return err
	}
}
