package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kode4food/cascade/internal/config"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/flowdef"
	"github.com/kode4food/cascade/pkg/log"
	"github.com/kode4food/cascade/pkg/script"
	"github.com/kode4food/cascade/pkg/store"
)

type app struct {
	cfg    *config.Config
	v      *viper.Viper
	env    *script.Env
	out    io.Writer
	errOut io.Writer
}

const Name = "cascade"

const (
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagStore       = "store"
	flagConcurrency = "concurrency"
	flagMaxReentry  = "max-reentry"
	flagStepTimeout = "step-timeout"
	flagHost        = "host"
	flagPort        = "port"
)

// Version is set at build time
var Version = "dev"

var (
	ErrReadConfig    = errors.New("failed to read config file")
	ErrStoreRequired = errors.New("a store URL is required")
)

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd := NewRootCommand(out, errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitCompleted
	}

	_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailed
}

// NewRootCommand builds the cascade command tree writing results to out and
// logs and diagnostics to errOut
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.NewDefaultConfig(),
		v:      viper.New(),
		out:    out,
		errOut: errOut,
	}

	cmd := &cobra.Command{
		Use:               Name,
		Short:             "Run event-driven step flows",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setupConfig,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	pf := cmd.PersistentFlags()
	pf.String(flagConfig, "", "path to a config file")
	pf.String(flagLogLevel, config.DefaultLogLevel,
		"log level (debug, info, warn, error)")
	pf.String(flagStore, "",
		"snapshot store URL (memory, redis, sqlite, file, s3, gs, azblob)")
	pf.Int(flagConcurrency, 0, "steps run at once per tick (0 is unbounded)")
	pf.Int(flagMaxReentry, config.DefaultMaxReentry,
		"default re-entry limit of router cycles")
	pf.Duration(flagStepTimeout, config.DefaultStepTimeout,
		"default step timeout (0 disables)")

	cmd.AddCommand(
		a.runCommand(),
		a.validateCommand(),
		a.describeCommand(),
		a.stateCommand(),
		a.serveCommand(),
	)
	return cmd
}

// setupConfig layers the environment, the config file, and explicit flags
// over the defaults, in that order
func (a *app) setupConfig(cmd *cobra.Command, _ []string) error {
	if err := a.cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := a.v.GetString(flagConfig); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: %w", ErrReadConfig, err)
		}
	}

	if a.v.IsSet(flagLogLevel) {
		a.cfg.LogLevel = a.v.GetString(flagLogLevel)
	}
	if a.v.IsSet(flagStore) {
		a.cfg.StoreURL = a.v.GetString(flagStore)
	}
	if a.v.IsSet(flagConcurrency) {
		a.cfg.MaxConcurrency = a.v.GetInt(flagConcurrency)
	}
	if a.v.IsSet(flagMaxReentry) {
		a.cfg.MaxReentry = a.v.GetInt(flagMaxReentry)
	}
	if a.v.IsSet(flagStepTimeout) {
		a.cfg.StepTimeout = a.v.GetDuration(flagStepTimeout)
	}
	if a.v.IsSet(flagHost) {
		a.cfg.APIHost = a.v.GetString(flagHost)
	}
	if a.v.IsSet(flagPort) {
		a.cfg.APIPort = a.v.GetInt(flagPort)
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.env = script.NewEnvWithCacheSize(a.cfg.ScriptCacheSize)
	a.setupLogging()
	return nil
}

func (a *app) setupLogging() {
	level := log.ParseLevel(a.cfg.LogLevel)
	slog.SetDefault(log.NewWithWriter(a.errOut, Name, Version, level))
}

func (a *app) loadFlow(path string) (*flowdef.Definition, *flow.Flow, error) {
	def, err := flowdef.Load(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := def.Flow(a.env, a.cfg.FlowOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return def, f, nil
}

// openStore opens the configured store. It returns nil when none is set
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.cfg.StoreURL == "" {
		return nil, nil
	}
	return store.Open(ctx, a.cfg.StoreURL)
}

func closeStore(st store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		slog.Warn("Failed to close store", log.Error(err))
	}
}
