package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"code.byted.org/khicago/nvstore"
	"code.byted.org/khicago/nvstore/boltdb"
	"code.byted.org/khicago/nvstore/internal/config"
	"code.byted.org/khicago/nvstore/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	flagConfig    = "config"
	flagDir       = "dir"
	flagPartition = "partition"
	flagDebug     = "debug"
	flagReport    = "report"
	flagNamespace = "namespace"
	flagKey       = "key"
	flagType      = "type"
	flagValue     = "value"
	flagEncoding  = "encoding"
	flagYes       = "yes"
)

// env is what every command needs to reach a partition.
type env struct {
	log      *zap.Logger
	driver   *boltdb.Driver
	device   *nvstore.Device
	opts     []nvstore.Option
	registry *prometheus.Registry
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := config.New(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString(flagDir); dir != "" {
		cfg.Sub("partition").Set("dir", dir)
	}

	level := config.LoggerLevel(cfg)
	if debug, _ := cmd.Flags().GetBool(flagDebug); debug {
		level = "debug"
	}
	log, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	bopts, err := config.BoltOptions(cfg)
	if err != nil {
		return nil, err
	}
	bopts.Logger = log
	drv, err := boltdb.New(bopts)
	if err != nil {
		return nil, err
	}

	e := &env{
		log:    log,
		driver: drv,
		opts:   []nvstore.Option{nvstore.WithLogger(nvstore.NewZapLogger(log))},
	}

	report, _ := cmd.Flags().GetBool(flagReport)
	if report || config.MetricsEnabled(cfg) {
		e.registry = prometheus.NewRegistry()
		m, err := metrics.NewWearMetrics(e.registry)
		if err != nil {
			return nil, err
		}
		e.opts = append(e.opts, nvstore.WithMetrics(m))
	}

	label, _ := cmd.Flags().GetString(flagPartition)
	if label == "" {
		label = config.DefaultLabel(cfg)
	}

	ctx := cmd.Context()
	parts := nvstore.NewPartitions(drv, e.opts...)
	if label == nvstore.DefaultPartition {
		e.device = parts.Partition(ctx)
	} else {
		e.device = parts.Get(ctx, label)
		_, _ = e.device.Recover(ctx)
	}
	return e, nil
}

// open opens the namespace named by the command flags.
func (e *env) open(cmd *cobra.Command, mode nvstore.Mode) (*nvstore.Stream, error) {
	ns, _ := cmd.Flags().GetString(flagNamespace)
	s, err := nvstore.OpenStream(cmd.Context(), e.device, ns, mode, e.opts...)
	if err != nil {
		return nil, fmt.Errorf("could not open namespace %q: %w", ns, err)
	}
	return s, nil
}

func (e *env) close(cmd *cobra.Command) error {
	if e.registry != nil {
		if err := printReport(cmd, e.registry); err != nil {
			e.log.Warn("could not gather wear counters", zap.Error(err))
		}
	}
	return multierr.Append(e.driver.Shutdown(), e.log.Sync())
}

// run wraps a command body with setup and teardown.
func run(body func(ctx context.Context, cmd *cobra.Command, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := e.close(cmd); cerr != nil && !isSyncNoise(cerr) {
				err = multierr.Append(err, cerr)
			}
		}()
		return body(cmd.Context(), cmd, e)
	}
}

// isSyncNoise filters the error zap returns when syncing a terminal.
func isSyncNoise(err error) bool {
	for _, e := range multierr.Errors(err) {
		if !strings.Contains(e.Error(), "sync /dev/std") {
			return false
		}
	}
	return true
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logger level %q: %w", level, err)
	}

	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	c.Encoding = "console"
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return c.Build(
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.FatalLevel)),
	)
}

func printReport(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			sort.Strings(labels)
			cmd.Printf("%s{%s} %v\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}

func addItemFlags(cmd *cobra.Command) {
	ff := cmd.Flags()
	ff.StringP(flagNamespace, "n", "", "Namespace name")
	ff.StringP(flagKey, "k", "", "Key name")
	ff.StringP(flagType, "t", "", "Value type: "+strings.Join(typeNames, ", "))
	ff.String(flagEncoding, encodingHex, "Blob encoding: hex or base58")

	_ = cmd.MarkFlagRequired(flagNamespace)
	_ = cmd.MarkFlagRequired(flagKey)
	_ = cmd.MarkFlagRequired(flagType)
}
