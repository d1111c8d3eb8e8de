package commands

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/rota/internal/config"
	"github.com/dyluth/rota/internal/directory"
	"github.com/dyluth/rota/internal/orchestrator"
	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/timespec"
	"github.com/dyluth/rota/pkg/rotation"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	dateSpec    string
	sandboxName string

	// now is replaced in tests
	now = time.Now
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rota",
	Short: "Rota - seat rotation and break queue manager",
	Long: `Rota assigns personnel to positions arranged in per-section rotation rings,
advances them one tick at a time under a time-of-day staffing policy, and
manages the break queue of personnel waiting to be reseated.

State lives in Redis, one record per date. Sandbox instances (--sandbox) are
isolated, expiring copies for test sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rota.yml", "Path to rota.yml")
	rootCmd.PersistentFlags().StringVarP(&dateSpec, "date", "d", "", "Date to operate on: YYYY-MM-DD, today, yesterday, tomorrow (default today)")
	rootCmd.PersistentFlags().StringVarP(&sandboxName, "sandbox", "s", "", "Sandbox instance name (isolated, expiring state)")
}

// session bundles everything a command needs for one invocation.
type session struct {
	cfg     *config.RotaConfig
	client  *rotation.Client
	svc     *orchestrator.Service
	dir     directory.Directory
	scope   rotation.Key
	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Close releases resources in reverse order of acquisition and logs any that fail to close.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			log.Printf("[Rota] Failed to close %s: %v", c.name, err)
		}
	}
}

// openSession loads configuration, connects to Redis and resolves the target scope.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{fmt.Sprintf("Create %s or point --config at an existing file", configPath)},
		)
	}

	topo, err := cfg.BuildTopology()
	if err != nil {
		return nil, printer.Error("invalid topology", err.Error(), nil)
	}

	date, err := timespec.ParseDate(dateSpec, now(), cfg.Location())
	if err != nil {
		return nil, printer.Error("invalid --date", err.Error(), nil)
	}
	scope := rotation.Key{Date: date, Instance: sandboxName}
	if err := scope.Validate(); err != nil {
		return nil, printer.Failure("scope", err)
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, printer.Error("invalid redis_url", err.Error(), nil)
	}
	client, err := rotation.NewClient(opts, cfg.Storage.Timeout)
	if err != nil {
		return nil, printer.Error("failed to create storage client", err.Error(), nil)
	}
	s := &session{cfg: cfg, client: client, scope: scope, closers: []closer{{name: "storage client", close: client.Close}}}

	if err := client.Ping(ctx); err != nil {
		s.Close()
		return nil, printer.Failure("connect", err)
	}

	dir, closeDir, err := directory.Open(cfg.Directory.Kind, cfg.Directory.Path)
	if err != nil {
		s.Close()
		return nil, printer.Error("failed to open personnel directory", err.Error(), nil)
	}
	s.dir = dir
	s.closers = append(s.closers, closer{name: "personnel directory", close: closeDir})

	s.svc = orchestrator.NewService(client, topo, dir, cfg)
	return s, nil
}
