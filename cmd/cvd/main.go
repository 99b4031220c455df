// cvd is the Cervus host daemon: it maps the guest regions, then serves
// LOAD and RUN on the control socket until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cervus-dev/cervus/application/config"
	"github.com/cervus-dev/cervus/application/schema"
	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/host"
	"github.com/cervus-dev/cervus/infrastructure/control"
	wazerointerp "github.com/cervus-dev/cervus/infrastructure/wazero"
	cervuslog "github.com/cervus-dev/cervus/log"
	"github.com/cervus-dev/cervus/vmm"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath  string
	socket      string
	logLevel    string
	heapRegions bool
	printSchema bool
	checkOnly   bool
	stopTimeout time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&opts.socket, "socket", "", "Control socket path (overrides the config file)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
	flag.BoolVar(&opts.heapRegions, "heap-regions", false, "Back regions with heap memory instead of fixed mappings (development only)")
	flag.BoolVar(&opts.printSchema, "print-schema", false, "Print the configuration JSON schema and exit")
	flag.BoolVar(&opts.checkOnly, "check", false, "Validate the configuration and exit")
	flag.DurationVar(&opts.stopTimeout, "stop-timeout", 10*time.Second, "How long shutdown waits for running executions")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cvd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the Cervus host daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.printSchema {
		data, err := schema.ConfigSchema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*entities.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.socket == "" && opts.logLevel == "" {
		return cfg, nil
	}
	if opts.socket != "" {
		cfg.Socket = opts.socket
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	// Overrides are validated like the file.
	return loader.Finish(*cfg, "")
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.checkOnly {
		fmt.Println("configuration ok")
		return nil
	}

	level, err := cervuslog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := cervuslog.NewLogger(cervuslog.WithLevel(level), cervuslog.WithFormat(cfg.LogFormat))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	reportGrantRisks(logger, cfg)

	interp := wazerointerp.New(logger)
	defer func() {
		if err := interp.Close(context.Background()); err != nil {
			logger.Warn("cvd: close interpreter", "error", err)
		}
	}()

	hostOpts := []host.Option{
		host.WithLogger(logger),
		host.WithLogSink(cervuslog.NewSink(logger)),
	}
	if opts.heapRegions {
		logger.Warn("cvd: regions are heap-backed; guest code built for fixed addresses will not run")
		hostOpts = append(hostOpts, host.WithRegionManager(vmm.New(cfg.Layout,
			vmm.WithMapper(vmm.NewHeapMapper(vmm.DefaultHeapBackingLimit)),
			vmm.WithLogger(logger))))
	}
	h := host.New(*cfg, interp, hostOpts...)
	if err := h.Init(); err != nil {
		return err
	}

	srv := control.NewServer(cfg.Socket, h,
		control.WithSocketMode(fs.FileMode(cfg.SocketMode)),
		control.WithMaxFrameSize(cfg.MaxRequestSize),
		control.WithServerLogger(logger))
	if err := srv.Listen(); err != nil {
		return errors.Join(err, shutdown(h, opts.stopTimeout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("cvd: stopping")
		return shutdown(h, opts.stopTimeout)
	})
	return g.Wait()
}

// reportGrantRisks warns about grants that open more than specific files.
func reportGrantRisks(logger *slog.Logger, cfg *entities.Config) {
	assessor := entities.NewRiskAssessor()
	for key, grants := range cfg.Grants {
		level := assessor.AssessGrantSet(grants)
		if level == entities.RiskLevelLow {
			continue
		}
		logger.Warn("cvd: broad filesystem grant",
			"identity", key,
			"risk", level.String(),
			"risks", assessor.DescribeRisks(grants))
	}
}

func shutdown(h *host.Host, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.Shutdown(ctx)
}
