package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/reglet-dev/reglet-script/application/validation"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/host"
	"github.com/reglet-dev/reglet-script/infrastructure/fsys"
	"github.com/reglet-dev/reglet-script/infrastructure/grantstore"
	"github.com/reglet-dev/reglet-script/infrastructure/metrics"
	"github.com/reglet-dev/reglet-script/infrastructure/prompter"
	"github.com/reglet-dev/reglet-script/internal/config"
	"github.com/reglet-dev/reglet-script/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	policyFile  string
	baseDir     string
	logLevel    string
	metricsFile string
	allowRead   []string
	allowWrite  []string
	exports     []string
	timeout     time.Duration
	interactive bool
}

func (a *app) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <entry>",
		Short: "Run an entry module",
		Long: `Run loads the entry module and everything it requires, evaluating each
module once. Capabilities come from the policy file, the --allow flags and
grants saved by earlier interactive runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timeout") {
				f.timeout = -1
			}
			return a.run(cmd.Context(), args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.policyFile, "policy", "", "policy file (YAML or JSON)")
	flags.StringVar(&f.baseDir, "base-dir", "", "directory the entry specifier resolves against (default is the working directory)")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	flags.StringSliceVar(&f.allowRead, "allow-read", nil, "grant read access to a directory tree")
	flags.StringSliceVar(&f.allowWrite, "allow-write", nil, "grant read and write access to a directory tree")
	flags.StringSliceVar(&f.exports, "export", nil, "print these exports of the entry module as JSON")
	flags.DurationVar(&f.timeout, "timeout", 0, "bound the run (0 disables the bound)")
	flags.BoolVarP(&f.interactive, "interactive", "i", false, "prompt for capabilities the policy does not grant")
	return cmd
}

func (a *app) run(ctx context.Context, entry string, f runFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	if f.policyFile != "" {
		cfg.Script.PolicyFile = f.policyFile
	}
	if f.baseDir != "" {
		cfg.Script.BaseDir = f.baseDir
	}
	if f.timeout >= 0 {
		cfg.Script.Timeout = f.timeout
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	baseDir := cfg.Script.BaseDir
	if baseDir == "" {
		if baseDir, err = os.Getwd(); err != nil {
			return err
		}
	}

	store := a.grantStore(cfg)
	grants, err := a.loadGrants(cfg, store)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	for _, dir := range f.allowRead {
		grants.AddRule(entities.RootRule(absUnder(baseDir, dir), false))
	}
	for _, dir := range f.allowWrite {
		grants.AddRule(entities.RootRule(absUnder(baseDir, dir), true))
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	broker := policy.NewBroker(grants,
		policy.WithWorkingDirectory(baseDir),
		policy.WithDenialHandler(policy.NewLogDenialHandler(logger)),
		policy.WithRecorder(recorder))

	cli := prompter.NewCliPrompter(a.stdin, a.stderr, prompter.WithInteractive(f.interactive))
	var decider ports.PermissionBroker = broker
	if f.interactive {
		decider = policy.NewPromptingBroker(broker, cli,
			policy.WithGrantStore(store),
			policy.WithStoreErrorHandler(func(err error) {
				logger.Warn("failed to save grant", zap.String("path", store.ConfigPath()), zap.Error(err))
			}))
	}

	r, err := host.New(ctx, entry,
		host.WithBroker(decider),
		host.WithFileSystem(fsys.New(a.fs, fsys.WithWorkingDirectory(baseDir))),
		host.WithBaseDir(baseDir),
		host.WithLogger(logger),
		host.WithRecorder(recorder),
		host.WithTimeout(cfg.Script.Timeout),
		host.WithFetchTimeout(cfg.Script.FetchTimeout),
		host.WithMaxOutput(cfg.Script.MaxOutput),
		host.WithCacheBackend(host.CacheBackend(cfg.Script.CacheBackend), cfg.Script.CacheDir),
		host.WithStdout(a.stdout),
		host.WithStderr(a.stderr))
	if err != nil {
		return &ExitError{Code: exitCode(err), Err: err}
	}
	defer func() { _ = r.Dispose(context.WithoutCancel(ctx)) }()

	runErr := r.Run(ctx)
	if f.metricsFile != "" {
		if err := a.writeMetrics(f.metricsFile, reg); err != nil {
			logger.Warn("failed to write metrics", zap.String("path", f.metricsFile), zap.Error(err))
		}
	}
	if runErr != nil {
		if missing := missingGrants(runErr); missing != nil && !f.interactive {
			runErr = fmt.Errorf("%w\n%v", runErr, cli.FormatNonInteractiveError(missing))
		}
		return &ExitError{Code: exitCode(runErr), Err: runErr}
	}

	if r.OutputTruncated() {
		logger.Warn("script output truncated", zap.Int("max_bytes", cfg.Script.MaxOutput))
	}
	return a.printExports(r, f.exports)
}

func (a *app) grantStore(cfg *config.Config) *grantstore.FileStore {
	opts := []grantstore.FileStoreOption{grantstore.WithFs(a.fs)}
	if cfg.Script.GrantsFile != "" {
		opts = append(opts, grantstore.WithPath(cfg.Script.GrantsFile))
	}
	return grantstore.NewFileStore(opts...)
}

// loadGrants reads the policy file, if any, and merges saved grants into it.
func (a *app) loadGrants(cfg *config.Config, store ports.GrantStore) (*entities.GrantSet, error) {
	var raw []byte
	if cfg.Script.PolicyFile != "" {
		data, err := afero.ReadFile(a.fs, cfg.Script.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy: %w", err)
		}
		raw = data
	}
	v, err := validation.NewPolicyValidator()
	if err != nil {
		return nil, err
	}
	loader := host.NewPolicyLoader(host.WithPolicyValidator(v), host.WithStoredGrants(store))
	return loader.Load(raw)
}

func (a *app) printExports(r *host.Runtime, names []string) error {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := host.Get[any](r, name)
		if err != nil {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		out[name] = v
	}
	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func (a *app) writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	f, err := a.fs.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// missingGrants describes the grant that would have allowed the denial in
// err, or nil when err is not a denial.
func missingGrants(err error) *entities.GrantSet {
	var pd *domerrors.PermissionDeniedError
	if !errors.As(err, &pd) {
		return nil
	}
	c := pd.Capability
	missing := &entities.GrantSet{}
	switch {
	case c == entities.CapabilityReadAll:
		missing.AllowReadAll = true
	case c == entities.CapabilityWriteAll:
		missing.AllowWriteAll = true
	case pd.Path != "":
		missing.AllowBlind = c.IsBlind()
		missing.AddRule(entities.PathRule(pd.Path, !c.IsWrite(), c.IsWrite()))
	}
	return missing
}

func absUnder(base, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(base, dir)
}
