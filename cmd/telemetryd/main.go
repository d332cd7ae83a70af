// Command telemetryd runs the replay telemetry service: an HTTP API that
// accepts decoded replay documents, processes them into normalized
// metadata and binary frame streams, and serves the results back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/rlviewer/telemetry/internal/api"
	"github.com/rlviewer/telemetry/internal/config"
	"github.com/rlviewer/telemetry/internal/extract"
	"github.com/rlviewer/telemetry/internal/influx"
	"github.com/rlviewer/telemetry/internal/job"
	"github.com/rlviewer/telemetry/internal/logging"
	"github.com/rlviewer/telemetry/internal/monitor"
	intOtel "github.com/rlviewer/telemetry/internal/otel"
	"github.com/rlviewer/telemetry/internal/storage"
)

const serviceName = "telemetryd"

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config", ".", "directory containing telemetry.cfg.json")
	flag.Parse()

	sessionStart := time.Now()

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, continuing with defaults\n", err)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "creating logs dir: %v\n", err)
		return 1
	}

	logPath := logging.LogFilePath(logsDir, serviceName, sessionStart)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		return 1
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel: %v\n", err)
		return 1
	}

	var gelfWriter io.Writer
	if config.GetBool("graylog.enabled") {
		gelfWriter, err = logging.NewGelfWriter(config.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog: %v, continuing without GELF\n", err)
			gelfWriter = nil
		}
	}

	slogMgr := logging.NewSlogManager()
	slogMgr.Setup(logFile, config.GetString("logLevel"), provider.LoggerProvider(), gelfWriter)
	log := slogMgr.Logger().With("service", serviceName)
	log.Info("Starting", "version", version, "log_file", logPath)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	store := storage.NewManager(zlog)
	if err := store.Connect(); err != nil {
		log.Error("Storage unavailable", "error", err)
		return 1
	}
	defer store.Close()
	if err := store.Setup(); err != nil {
		log.Error("Storage migration failed", "error", err)
		return 1
	}

	dataDir := config.GetString("dataDir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Error("Creating data dir failed", "error", err)
		return 1
	}

	var influxMgr *influx.Manager
	var recorder job.Recorder
	var reqRecorder api.RequestRecorder
	if config.GetBool("influx.enabled") {
		influxMgr = influx.NewManager(zlog, filepath.Join(dataDir, "influx_backup.log.gz"))
		if err := influxMgr.Connect(); err != nil {
			log.Warn("InfluxDB unavailable, metrics disabled", "error", err)
			influxMgr = nil
		} else {
			recorder = influxMgr
			reqRecorder = influxMgr
			defer influxMgr.Close()
		}
	}

	ec := config.GetExtractConfig()
	opts := extract.Options{
		TimestampCap: ec.TimestampCap,
		FrameCeiling: ec.FrameCeiling,
		RecordFPS:    ec.RecordFPS,
		Logger:       log,
	}

	jc := config.GetJobConfig()
	jobs := job.NewStore(jc.TTL)
	runner, err := job.NewRunner(jobs, store, recorder, opts, log)
	if err != nil {
		log.Error("Creating job runner failed", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner.Start(ctx, jc.Workers)
	runner.StartJanitor(ctx, 5*time.Minute)

	mon := monitor.NewService(monitor.Dependencies{
		Jobs:     jobs,
		QueueLen: runner.QueueLen,
		DataDir:  dataDir,
		Logger:   log,
	}, 10*time.Second)
	if err := mon.Start(); err != nil {
		log.Warn("Status monitor failed to start", "error", err)
	}
	defer mon.Stop()

	srv := api.NewServer(
		config.GetString("server.addr"),
		viper.GetStringSlice("server.corsOrigins"),
		store,
		jobs,
		runner,
		reqRecorder,
		log,
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	runner.Wait()

	if err := slogMgr.Flush(shutdownCtx); err != nil {
		log.Error("Log flush failed", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("OTel shutdown failed", "error", err)
	}

	log.Info("Stopped")
	return 0
}
