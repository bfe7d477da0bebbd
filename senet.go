package main

/* senet estimates daily evapotranspiration for one Sentinel-2/Sentinel-3
   acquisition. It reads the preprocessed input products named in the run
   config, executes the processing chain from leaf spectra to daily ET and
   records the run to stdout, a rotating log directory and, when a DSN is
   configured, a PostgreSQL ledger. Prometheus metrics are served for the
   lifetime of the run when a metrics address is given. */

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/nci/senet/ledger"
	"github.com/nci/senet/metrics"
	proc "github.com/nci/senet/processor"
	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
)

var (
	configFile     = flag.String("conf", "senet.yaml", "Run config file (YAML or JSON).")
	serverDataDir  = flag.String("data_dir", utils.DataDir, "Colon separated search path for auxiliary data such as the land cover LUT.")
	metricsAddr    = flag.String("metrics_addr", "", "Address serving Prometheus metrics during the run, e.g. :9100.")
	serverLogDir   = flag.String("log_dir", "", "Run record log directory, overrides metrics.log_dir.")
	validateConfig = flag.Bool("check_conf", false, "Validate the run config file.")
	dumpConfig     = flag.Bool("dump_conf", false, "Dump the effective run config.")
	verbose        = flag.Bool("v", false, "Verbose mode with human readable logs.")
)

const (
	statusOK        = "ok"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

func newLogger(runID string) zerolog.Logger {
	var log zerolog.Logger
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(zerolog.DebugLevel)
	} else {
		log = zerolog.New(os.Stderr).Level(zerolog.InfoLevel)
	}
	return log.With().Timestamp().Str("run_id", runID).Logger()
}

func main() {
	flag.Parse()
	utils.DataDir = *serverDataDir
	os.Exit(run())
}

func run() int {
	runID := uuid.New().String()
	log := newLogger(runID)

	config := utils.NewConfig()
	if err := config.LoadConfigFile(*configFile); err != nil {
		log.Error().Err(err).Str("config", *configFile).Msg("Error in loading config file")
		return 2
	}
	if *validateConfig {
		return 0
	}
	if *dumpConfig {
		out, err := config.Dump()
		if err != nil {
			log.Error().Err(err).Msg("Error in dumping config")
			return 1
		}
		fmt.Print(out)
		return 0
	}

	resolver := utils.NewRuntimeFileResolver(utils.DataDir + ":" + filepath.Join(utils.DataDir, "LUT"))
	lut, err := resolver.LoadLookupTable(config.LookupTable)
	if err != nil {
		log.Error().Err(err).Str("lookup_table", config.LookupTable).Msg("Error in loading lookup table")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(config.Metrics.Namespace)
	if *metricsAddr != "" {
		ln, err := reuseport.Listen("tcp", *metricsAddr)
		if err != nil {
			log.Error().Err(err).Str("addr", *metricsAddr).Msg("failed to listen")
			return 1
		}
		defer ln.Close()
		go func() {
			if err := http.Serve(ln, collector.Handler()); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
		log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	}

	loggers := metrics.MultiLogger{metrics.NewStdoutLogger(log)}
	logDir := config.Metrics.LogDir
	if *serverLogDir != "" {
		logDir = *serverLogDir
	}
	if logDir != "" {
		fileLogger := metrics.NewFileLogger(logDir, config.Metrics.MaxLogFileSize, config.Metrics.MaxLogFiles, *verbose, log)
		defer fileLogger.Close()
		loggers = append(loggers, fileLogger)
	}
	if config.Ledger.DSN != "" {
		store, err := ledger.Open(config.Ledger, log)
		if err != nil {
			log.Error().Err(err).Msg("Error in opening run ledger")
			return 2
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Error().Err(err).Msg("Error in preparing run ledger")
			return 1
		}
		loggers = append(loggers, store)
	}

	pipeline := proc.NewPipeline(config, lut, log)
	pipeline.Collector = collector
	pipeline.Metrics = metrics.NewMetricsCollector(loggers)

	start := time.Now()
	info := pipeline.Metrics.Info
	info.RunID = runID
	info.StartTime = start.UTC().Format(time.RFC3339)
	info.ConfigFile = *configFile

	err = execute(ctx, pipeline)

	info.Duration = time.Since(start)
	switch {
	case err == nil:
		info.Status = statusOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		info.Status = statusCancelled
	default:
		info.Status = statusFailed
	}
	if err != nil {
		info.Error = err.Error()
		log.Error().Err(err).Msg("run failed")
	}
	collector.ObserveRun(info.Status, info.Duration)
	pipeline.Metrics.Log()

	switch {
	case err == nil:
		log.Info().Dur("duration", info.Duration).Msg("run finished")
		return 0
	case errors.Is(err, utils.ErrConfig), errors.Is(err, utils.ErrSchema), errors.Is(err, utils.ErrGeometry):
		return 2
	}
	return 1
}

func execute(ctx context.Context, pipeline *proc.Pipeline) error {
	inputs, err := proc.LoadInputs(pipeline.Config.Inputs)
	if err != nil {
		return err
	}
	out, err := pipeline.Run(ctx, inputs)
	if err != nil {
		return err
	}

	event := pipeline.Log.Info()
	if et, err := out.Daily().FirstGrid(); err == nil {
		event = event.Int("nan_pixels", et.CountNaN())
	}
	if pipeline.Config.OutputDir == "" {
		event.Msg("daily evapotranspiration computed, output_dir is not set so nothing was written")
		return nil
	}
	event.Str("path", filepath.Join(pipeline.Config.OutputDir, proc.StageDailyET)).Msg("daily evapotranspiration written")
	return nil
}
