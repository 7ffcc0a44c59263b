// Package server 以 gRPC 形式提供回测服务
//
// 服务 pairsbt.v1.Backtester 只有一个一元方法 Run：请求是 JSON 结构的回测配置
// （字段与 YAML 配置一致），响应是运行摘要，两者都编码为 google.protobuf.Struct。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/publish"
)

const (
	ServiceName = "pairsbt.v1.Backtester"
	RunMethod   = "/" + ServiceName + "/Run"
)

// BacktesterServer 服务端接口
type BacktesterServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc 手写的服务描述（请求/响应均为 structpb.Struct）
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktesterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler:    runHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pairsbt/v1/backtester.proto",
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktesterServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RunMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BacktesterServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Options 服务选项
type Options struct {
	// ResultDir 非空时覆盖请求中的 output.result_dir
	ResultDir string
	// MaxConcurrent 同时运行的回测数上限，<= 0 表示不限制
	MaxConcurrent int
	// Setup 在每次运行前调用，用于挂载发布器/存储/指标
	Setup func(*backtest.Runner)
}

// Service 实现 BacktesterServer，每个请求独立运行
type Service struct {
	logger zerolog.Logger
	opts   Options
	sem    chan struct{}
}

// NewService 创建服务
func NewService(logger zerolog.Logger, opts Options) *Service {
	s := &Service{logger: logger, opts: opts}
	if opts.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return s
}

// Run 执行一次回测
func (s *Service) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	cfg, err := backtest.ParseConfig(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid config: %v", err)
	}
	if s.opts.ResultDir != "" {
		cfg.Output.ResultDir = s.opts.ResultDir
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	runner := backtest.NewRunner(cfg, s.logger)
	if s.opts.Setup != nil {
		s.opts.Setup(runner)
	}
	out, err := runner.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("name", cfg.Name).Msg("grpc run failed")
		return nil, toStatus(err)
	}

	resp, err := publish.SummaryStruct(out.Summary())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode summary: %v", err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, backtest.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewGRPCServer 注册回测服务和标准健康检查
func NewGRPCServer(svc BacktesterServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// ListenAndServe 监听 addr，ctx 取消时优雅退出
func ListenAndServe(ctx context.Context, addr string, srv *grpc.Server, logger zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("stopping grpc server")
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
