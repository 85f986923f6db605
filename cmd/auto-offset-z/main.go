// auto-offset-z calibrates the Z offset between the nozzle and the print
// surface on printers with a physical Z endstop and an XY-offset probe.
// It probes the endstop pin and the bed center through Moonraker, computes
// the offset and optionally applies it as a gcode offset.
//
// Usage:
//
//	auto-offset-z -config ~/printer.cfg [options]
//
// Options:
//
//	-config string    Printer configuration file (required)
//	-moonraker string Moonraker address (default "localhost:7125")
//	-apply            Apply the computed offset via SET_GCODE_OFFSET
//	-metrics string   Serve Prometheus metrics on this address (off by default)
//	-timeout duration Overall run timeout (default 5m)
//	-trace            Enable debug tracing
//	-logfile string   Log file path (default: stderr)
//	-json             Log in JSON format
//
// Examples:
//
//	# Compute and print the offset
//	auto-offset-z -config ~/printer.cfg
//
//	# Compute and apply it
//	auto-offset-z -config ~/printer.cfg -apply
//
//	# Against a remote host, with metrics
//	auto-offset-z -config ./printer.cfg -moonraker voron.local:7125 -metrics :9102
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hawkeyexp/auto-offset-z/pkg/config"
	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
	"github.com/hawkeyexp/auto-offset-z/pkg/log"
	"github.com/hawkeyexp/auto-offset-z/pkg/metrics"
	"github.com/hawkeyexp/auto-offset-z/pkg/moonraker"
	"github.com/hawkeyexp/auto-offset-z/pkg/offset"
)

func main() {
	configFile := flag.String("config", "", "Printer configuration file (required)")
	moonrakerAddr := flag.String("moonraker", "localhost:7125", "Moonraker address")
	apply := flag.Bool("apply", false, "Apply the computed offset via SET_GCODE_OFFSET")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (off by default)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	trace := flag.Bool("trace", false, "Enable debug tracing")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	jsonLog := flag.Bool("json", false, "Log in JSON format")

	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config is required\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := log.New("auto-offset-z")
	if *trace {
		logger.SetLevel(log.DEBUG)
	}
	if *jsonLog {
		logger.SetFormat(log.FormatJSON)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetWriter(f)
		logger.SetColorize(false)
	}

	if err := run(logger, *configFile, *moonrakerAddr, *metricsAddr, *timeout, *apply); err != nil {
		var ce *errors.CalibrationError
		if errors.As(err, &ce) {
			logger.WithField("code", string(ce.Code)).Error("%v", err)
		} else {
			logger.Error("%v", err)
		}
		os.Exit(1)
	}
}

func run(logger *log.Logger, configFile, moonrakerAddr, metricsAddr string, timeout time.Duration, apply bool) error {
	printerCfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg, err := offset.LoadConfig(printerCfg)
	if err != nil {
		return err
	}
	if section, err := printerCfg.GetSection(offset.SectionName); err == nil {
		for _, opt := range section.GetUnusedOptions() {
			logger.Warn("ignoring unknown option %q in [%s]", opt, offset.SectionName)
		}
	}

	logger.WithFields(log.Fields{
		"endstop":  cfg.EndstopPosition.String(),
		"bed":      cfg.CenterPosition.String(),
		"leveling": cfg.LevelingKind,
	}).Info("configuration loaded")

	// Cancel the run on SIGINT/SIGTERM so the toolhead is not left
	// mid-sequence without the final hop.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	m := metrics.NewCalibrationMetrics()
	if metricsAddr != "" {
		exporter := metrics.NewServer(m, metricsAddr)
		go func() {
			if err := exporter.Start(); err != nil {
				logger.Error("metrics exporter: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = exporter.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics on http://%s/metrics", metricsAddr)
	}

	logger.Info("connecting to Moonraker at %s", moonrakerAddr)
	client, err := moonraker.Dial(ctx, moonrakerAddr)
	if err != nil {
		return err
	}
	defer client.Close()
	client.OnCall(func(method string, err error) {
		m.APICallsTotal.Inc(metrics.Labels{"method": method})
		if err != nil {
			m.APIErrorsTotal.Inc(nil)
		}
	})

	info, err := client.ServerInfo(ctx)
	if err != nil {
		return err
	}
	if state, _ := info["klippy_state"].(string); state != "ready" {
		return errors.New(errors.ErrAPI, fmt.Sprintf("klippy is %q, not ready", state))
	}

	printer := moonraker.NewPrinter(client, cfg.LevelingKind)
	cal := offset.NewCalibrator(cfg, printer, printer, printer, printer, logger)

	m.RunsStarted.Inc(nil)
	stop := m.RunDuration.Timer(nil)
	result, err := cal.Run(ctx)
	stop()
	if err != nil {
		code := "unknown"
		var ce *errors.CalibrationError
		if errors.As(err, &ce) {
			code = string(ce.Code)
		}
		m.RecordFailure(code)
		return err
	}
	m.RecordSuccess(result.Endstop.Z, result.Bed.Z, result.Offset)

	fmt.Println(result.Report())

	if apply {
		if err := printer.ApplyZOffset(ctx, result.Offset); err != nil {
			return err
		}
		logger.Info("offset %.6f applied", result.Offset)
	}
	return nil
}
