// Package commands implements the dynprompts command line.
package commands

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
	"github.com/benjaminschreck/go-dynprompts/pkg/generator"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

// Settings is the resolved configuration of one invocation: flags over
// environment over config file over defaults.
type Settings struct {
	Generator   *generator.Config
	WildcardDir string
	WildcardDB  string
}

type settingsKey struct{}

// NewRootCmd builds the dynprompts command tree.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "dynprompts",
		Short: "Generate prompts from templates with wildcards and random choices",
		Long: `dynprompts expands prompt templates into concrete prompts.

Templates use a Jinja-style syntax with these globals:
  choice(a, b, ...)             one item at random
  weighted_choice((a, 1), ...)  one item by weight
  random(), randint(low, high)  random numbers
  permutations(items, low, high)
  wildcard("name")              every value of a wildcard

Wildcards come from a directory of .txt/.yaml/.json files (--wildcards)
or a SQLite database (--wildcards-db).

Examples:
  dynprompts generate -t "a {{ choice('red', 'blue') }} car" -n 3
  dynprompts generate prompts.j2 --wildcards ./wildcards
  dynprompts validate prompts.j2
  dynprompts wildcards list --wildcards ./wildcards`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, v)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), settingsKey{}, settings))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (TOML or YAML)")
	flags.String("log-level", "", "log level: debug, info, warn, error or off")
	flags.Uint64("seed", 0, "random seed for reproducible output")
	flags.Bool("strict", false, "treat undefined template variables as errors")
	flags.Int("max-depth", 0, "maximum nesting depth of wildcards")
	flags.String("wildcards", "", "directory of wildcard files")
	flags.String("wildcards-db", "", "SQLite database of wildcards")

	root.AddCommand(
		newGenerateCmd(),
		newValidateCmd(),
		newWildcardsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func loadSettings(cmd *cobra.Command, v *viper.Viper) (*Settings, error) {
	defaults := generator.DefaultConfig()
	v.SetDefault("log-level", defaults.LogLevel)
	v.SetDefault("max-depth", defaults.MaxWildcardDepth)
	v.SetDefault("strict", defaults.StrictMode)
	v.SetDefault("cache-max-size", defaults.CacheMaxSize)
	v.SetDefault("cache-ttl", defaults.CacheTTL)

	v.SetEnvPrefix("DYNPROMPTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// the library reads DYNPROMPTS_MAX_WILDCARD_DEPTH for the same setting
	if err := v.BindEnv("max-depth", "DYNPROMPTS_MAX_DEPTH", "DYNPROMPTS_MAX_WILDCARD_DEPTH"); err != nil {
		return nil, errors.Wrap(err, "bind env")
	}
	if err := v.BindEnv("strict", "DYNPROMPTS_STRICT", "DYNPROMPTS_STRICT_MODE"); err != nil {
		return nil, errors.Wrap(err, "bind env")
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	config := &generator.Config{
		LogLevel:         v.GetString("log-level"),
		CacheMaxSize:     v.GetInt("cache-max-size"),
		CacheTTL:         v.GetDuration("cache-ttl"),
		MaxWildcardDepth: v.GetInt("max-depth"),
		StrictMode:       v.GetBool("strict"),
	}
	if v.IsSet("seed") {
		seed := v.GetUint64("seed")
		config.Seed = &seed
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := logging.SetLevel(config.LogLevel); err != nil {
		return nil, err
	}

	return &Settings{
		Generator:   config,
		WildcardDir: v.GetString("wildcards"),
		WildcardDB:  v.GetString("wildcards-db"),
	}, nil
}

func settingsFrom(cmd *cobra.Command) *Settings {
	if s, ok := cmd.Context().Value(settingsKey{}).(*Settings); ok {
		return s
	}
	return &Settings{Generator: generator.DefaultConfig()}
}

// openStore opens the configured wildcard sources. The returned closer
// must be called when done.
func (s *Settings) openStore(ctx context.Context) (wildcard.Store, *wildcard.DirStore, func() error, error) {
	var chain wildcard.Chain
	var dir *wildcard.DirStore
	closer := func() error { return nil }

	if s.WildcardDir != "" {
		d, err := wildcard.OpenDir(s.WildcardDir)
		if err != nil {
			return nil, nil, nil, err
		}
		dir = d
		chain = append(chain, d)
	}
	if s.WildcardDB != "" {
		db, err := wildcard.OpenSQLite(ctx, s.WildcardDB)
		if err != nil {
			return nil, nil, nil, err
		}
		closer = db.Close
		chain = append(chain, db)
	}

	switch len(chain) {
	case 0:
		return wildcard.NewMemoryStore(nil), nil, closer, nil
	case 1:
		return chain[0], dir, closer, nil
	default:
		return chain, dir, closer, nil
	}
}

// readSource reads a template file, or stdin for "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(err, "failed to read stdin")
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read template %s", path)
	}
	return string(b), nil
}
