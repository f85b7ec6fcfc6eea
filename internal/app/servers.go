package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
)

const shutdownTimeout = 5 * time.Second

// grpcServer: gRPC-сервер вместе с его метриками и health-сервисом.
type grpcServer struct {
	server  *grpc.Server
	health  *health.Server
	metrics *promgrpc.ServerMetrics
}

// newGRPCServer создаёт gRPC-сервер с prometheus-интерсептором и health-сервисом.
func newGRPCServer(logger *log.Entry) *grpcServer {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	return &grpcServer{server: server, health: healthServer, metrics: grpcMetrics}
}

// serve обслуживает lis до отмены ctx, затем останавливает сервер с таймаутом.
// Сервисы должны быть зарегистрированы до вызова.
func (g *grpcServer) serve(ctx context.Context, lis net.Listener, logger *log.Entry) error {
	server, healthServer := g.server, g.health
	g.metrics.InitializeMetrics(server)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", lis.Addr().String()).Info("grpc server listening")
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out, forcing grpc server stop")
			server.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newRouter собирает HTTP-маршруты: /metrics, health и дополнительные маршруты сервиса.
func newRouter(checks *healthcheck.Handler, routes ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	checks.Routes(r)
	for _, register := range routes {
		register(r)
	}
	return r
}

// serveHTTP обслуживает lis до отмены ctx.
func serveHTTP(ctx context.Context, handler http.Handler, lis net.Listener, logger *log.Entry) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", lis.Addr().String()).Info("http server listening")
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownHTTP(srv, logger)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// listen открывает оба листенера; при ошибке второго закрывает первый.
func listen(grpcAddr, httpAddr string) (net.Listener, net.Listener, error) {
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, nil, err
	}
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return nil, nil, err
	}
	return grpcLis, httpLis, nil
}
