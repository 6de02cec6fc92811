package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/objectfs/rgwbridge/internal/adapter"
	"github.com/objectfs/rgwbridge/internal/config"
	"github.com/objectfs/rgwbridge/pkg/native"
	"github.com/objectfs/rgwbridge/pkg/utils"
)

// app holds the state of one invocation.
type app struct {
	configFile string
	properties []string
	backend    string
	bucket     string
	verbose    bool

	// library replaces the configured backend when set.
	library native.Library

	stdin          io.Reader
	stdout, stderr io.Writer

	config    *config.Configuration
	adapter   *adapter.Adapter
	logCloser io.Closer
}

// offline marks commands that need the configuration but no mount.
const offline = "offline"

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return (&app{stdin: stdin, stdout: stdout, stderr: stderr}).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if stopErr := a.shutdown(ctx); err == nil {
		err = stopErr
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "rgwctl: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rgwctl",
		Short: "Filesystem operations against an object store through the RGW bridge",
		Long: `rgwctl mounts one bridge session from the configuration, runs a single
filesystem operation and unmounts.

Paths are /bucket/key, rgw://bucket/key, or relative to --bucket.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "YAML configuration file")
	flags.StringArrayVarP(&a.properties, "property", "D", nil, "fs.ceph.rgw.* property as key=value (repeatable)")
	flags.StringVar(&a.backend, "backend", "", "native library: memory, s3 or librgw")
	flags.StringVar(&a.bucket, "bucket", "", "bucket that relative paths resolve in")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.lsCommand(),
		a.statCommand(),
		a.catCommand(),
		a.putCommand(),
		a.mkdirCommand(),
		a.mvCommand(),
		a.rmCommand(),
		a.configCommand(),
	)
	return root
}

// loadConfig applies the configuration sources in order of precedence.
func (a *app) loadConfig() (*config.Configuration, error) {
	cfg := config.NewDefault()
	cfg.Global.LogLevel = "WARN"

	if a.configFile != "" {
		if err := cfg.LoadFromFile(a.configFile); err != nil {
			return nil, err
		}
	}

	props := make(map[string]string, len(a.properties))
	for _, p := range a.properties {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q is not key=value", p)
		}
		props[key] = value
	}
	if err := cfg.ApplyProperties(props); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if a.backend != "" {
		cfg.Backend.Type = a.backend
	}
	if a.bucket != "" {
		cfg.Mount.Bucket = a.bucket
	}
	if a.verbose {
		cfg.Global.LogLevel = "DEBUG"
	}
	return cfg, cfg.Validate()
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.config = cfg
	if cmd.Annotations[offline] != "" {
		return nil
	}

	lc := cfg.LoggerConfig()
	lc.Output = a.stderr
	logger, closer, err := utils.NewLogger(lc)
	if err != nil {
		return err
	}
	a.logCloser = closer

	opts := []adapter.Option{adapter.WithLogger(logger)}
	if a.library != nil {
		opts = append(opts, adapter.WithLibrary(a.library))
	}
	ad, err := adapter.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := ad.Start(cmd.Context()); err != nil {
		return err
	}
	a.adapter = ad
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	var err error
	if a.adapter != nil {
		err = a.adapter.Stop(context.WithoutCancel(ctx))
		a.adapter = nil
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
	return err
}
