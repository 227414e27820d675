package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-practice-evaluator/internal/app"
	"speech-practice-evaluator/internal/config"
	"speech-practice-evaluator/internal/events"
	apihttp "speech-practice-evaluator/internal/http"
	"speech-practice-evaluator/internal/observability"
	"speech-practice-evaluator/internal/observability/metrics"
	"speech-practice-evaluator/internal/schema"
	"speech-practice-evaluator/internal/service/evaluation"
	"speech-practice-evaluator/internal/service/stt"
	"speech-practice-evaluator/internal/service/stt/google"
	"speech-practice-evaluator/internal/service/stt/mock"
)

const healthServiceName = "speech.practice.Evaluator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	application := app.New(cfg)
	logger := application.Logger
	m := metrics.DefaultMetrics

	recognizers, err := recognizerFactory(cfg.STT)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid speech-to-text configuration")
	}

	validator, err := schema.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to compile result schema")
	}

	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicResults:     cfg.Kafka.TopicResults,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		Principal:        cfg.Kafka.Principal,
		Metrics:          m,
	})
	defer publisher.Close()

	svc := evaluation.NewService(cfg.Evaluation(), recognizers, publisher, validator, m)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apihttp.NewRouter(application, svc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	obsServer := observability.NewServer(":"+cfg.Observability.MetricsPort, prometheus.DefaultGatherer, application.Ready)
	obsServer.Start()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("Evaluation API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutting down")
	application.Shutdown()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	grpcServer.GracefulStop()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Observability shutdown failed")
	}
}

// recognizerFactory selects the speech-to-text provider.
func recognizerFactory(cfg config.STTConfig) (stt.Factory, error) {
	switch cfg.Provider {
	case "mock":
		return mock.NewFactory(mock.DefaultScript, mock.WithFragmentInterval(mock.DefaultFragmentInterval)), nil
	case "google":
		return google.NewFactory(google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}
