package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/config"
	"github.com/BrandonDHaskell/Portunus/edge/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/edge/internal/logging"
	"github.com/BrandonDHaskell/Portunus/edge/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/controller"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/eventlog"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/registry"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/edge/internal/rpc"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "portunus-edge: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "portunus-edge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "portunus-edge: logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	withState := cfg.Policy == config.PolicyToggle

	// Hardware
	board, err := openBoard(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = board.Close() }()

	// Durable log
	st, closeStore, err := openStore(ctx, cfg, withState, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	log := eventlog.New(st, eventlog.Config{RingSize: cfg.RingSize, Location: loc}, logger.Named("eventlog"))
	if cfg.Archive.Bucket != "" {
		arch, err := openArchive(ctx, cfg)
		if err != nil {
			return err
		}
		log.SetArchiver(arch)
	}
	if err := log.Open(ctx); err != nil {
		return err
	}

	// Policy
	state := policy.NewState()
	reg := registry.New(cfg.Registry)
	eval := policy.NewEvaluator(policy.Config{
		Kind:          cfg.Policy,
		Hours:         policy.Hours{Start: cfg.BusinessStart, End: cfg.BusinessEnd},
		AlertInterval: cfg.AlertInterval,
		Location:      loc,
	}, state, reg, log)
	logger.Info("policy configured",
		zap.String("sensor", cfg.Sensor),
		zap.String("policy", cfg.Policy),
		zap.Int("registry", reg.Len()))

	// Notifications
	sinks, err := openNotifiers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	// Metrics
	failures := metrics.NewFailures()
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := failures.Register(promReg); err != nil {
		return err
	}
	if err := metrics.RegisterGauge(promReg, "alarm_active", "1 while the alarm sweep is running.", metrics.BoolGauge(state.AlarmActive)); err != nil {
		return err
	}

	// Control loop
	snsr, err := buildSensor(cfg, board)
	if err != nil {
		return err
	}
	led, buzzer, actuators := buildActuators(cfg, board)

	ctl := controller.New(controller.Config{
		PollInterval:   cfg.PollInterval,
		MaxSweeps:      cfg.AlarmMaxSweeps,
		FatalLogWrites: cfg.FatalLogWrites,
		StartupBlinks:  3,
	}, controller.Deps{
		Sensor:    snsr,
		Evaluator: eval,
		State:     state,
		Log:       log,
		Notifier:  sinks.fanout,
		Actuators: actuators,
		Buzzer:    buzzer,
		Indicator: led,
		Failures:  failures,
		Logger:    logger.Named("controller"),
	})

	svc := service.NewControlService(service.Deps{
		DeviceID:  cfg.DeviceID,
		State:     state,
		Evaluator: eval,
		Log:       log,
		Failures:  failures,
		Logger:    logger.Named("control"),
	})
	svc.SetLoop(ctl)

	if sinks.mqtt != nil {
		if err := service.ListenCommands(sinks.mqtt, cfg.MQTT.TopicPrefix, svc, logger.Named("mqtt")); err != nil {
			return err
		}
	}
	hb := service.NewHeartbeatPublisher(svc, sinks.publisher(), service.HeartbeatConfig{
		Interval:    cfg.HeartbeatInterval,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger.Named("heartbeat"))
	hb.Start(ctx)
	defer hb.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger.Named("http"),
		Addr:      cfg.HTTPAddr,
		Control:   svc,
		TokenHash: cfg.ControlTokenHash,
		Gatherer:  promReg,
	})
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("http listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// gRPC health
	var health *rpc.HealthServer
	if cfg.GRPCAddr != "" {
		gln, err := rpc.Listen(cfg.GRPCAddr)
		if err != nil {
			return err
		}
		health = rpc.NewHealthServer(logger.Named("grpc"))
		go func() {
			if err := health.Serve(gln); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		defer health.Stop()
		health.SetServing(true)
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- ctl.Run(ctx) }()

	select {
	case err = <-loopErr:
	case err = <-errCh:
		stop()
		<-loopErr
	case <-ctx.Done():
		err = <-loopErr
	}

	if health != nil {
		health.SetServing(false)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutting down")
	return err
}
