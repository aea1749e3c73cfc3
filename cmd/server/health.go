package main

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"spindle/internal/spin"

	"go.uber.org/zap"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// spinHealthService is the name load balancers probe for readiness of the
// spin API.
const spinHealthService = "spindle.SpinService"

// healthEndpoint is the gRPC health server plus its graceful-stop handle.
type healthEndpoint struct {
	server *grpcpkg.Server
	health *health.Server
}

func startHealthEndpoint(addr string, limiter *spin.RateLimiter, logger *zap.Logger) (*healthEndpoint, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(limiter, logger)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(limiter, logger)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(spinHealthService, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(server)
		logger.Info("grpc reflection enabled", zap.String("env", env))
	}

	go func() {
		if err := server.Serve(lis); err != nil {
			logger.Warn("health endpoint stopped", zap.Error(err))
		}
	}()

	return &healthEndpoint{server: server, health: healthServer}, nil
}

func (e *healthEndpoint) shutdown() {
	if e == nil {
		return
	}
	e.health.SetServingStatus(spinHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	e.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	e.server.GracefulStop()
}

type rateLimitedServerStream struct {
	grpcpkg.ServerStream
	limiter *spin.RateLimiter
}

func (s *rateLimitedServerStream) RecvMsg(m any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.Context()); err != nil {
			return err
		}
	}
	return s.ServerStream.RecvMsg(m)
}

func rateLimitUnaryInterceptor(limiter *spin.RateLimiter, logger *zap.Logger) grpcpkg.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpcpkg.UnaryServerInfo, handler grpcpkg.UnaryHandler) (any, error) {
		start := time.Now()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := handler(ctx, req)
		if err != nil && shouldTrackMethod(info.FullMethod) {
			logger.Warn("grpc unary failed",
				zap.String("method", info.FullMethod),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return resp, err
	}
}

func rateLimitStreamInterceptor(limiter *spin.RateLimiter, logger *zap.Logger) grpcpkg.StreamServerInterceptor {
	return func(srv any, stream grpcpkg.ServerStream, info *grpcpkg.StreamServerInfo, handler grpcpkg.StreamHandler) error {
		start := time.Now()
		wrapped := grpcpkg.ServerStream(stream)
		if limiter != nil {
			wrapped = &rateLimitedServerStream{ServerStream: stream, limiter: limiter}
		}
		err := handler(srv, wrapped)
		if err != nil && shouldTrackMethod(info.FullMethod) {
			logger.Warn("grpc stream failed",
				zap.String("method", info.FullMethod),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return err
	}
}

func shouldTrackMethod(method string) bool {
	return method != "" && !strings.HasPrefix(method, "/grpc.reflection.")
}
