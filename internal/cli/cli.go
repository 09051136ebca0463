// Package cli provides the command line interface. It is a thin
// consumer of the syncer's read and refresh APIs; all caching and
// consistency logic lives in the library.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmgilman/go/ghtree"
	"github.com/jmgilman/go/ghtree/cache"
	"github.com/jmgilman/go/ghtree/providers/sdk"
)

const (
	envPrefix          = "GHTREE"
	defaultTTL         = 10 * time.Minute
	defaultMaxCacheAge = 30 * 24 * time.Hour
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "ghtree",
		Short:         "browse GitHub repository trees from a local cache",
		Long:          "ghtree synchronizes GitHub repository listings and file trees\ninto a local cache and serves repeated lookups from it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("token", "", "GitHub token (raises the rate limit)")
	flags.String("base-url", "", "API base URL for self-hosted instances")
	flags.String("cache-dir", "", "cache directory (default: user cache dir)")
	flags.Duration("ttl", defaultTTL, "cache freshness window")
	flags.Duration("max-cache-age", defaultMaxCacheAge, "sweep threshold for unused records")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	for _, name := range []string{"token", "base-url", "cache-dir", "ttl", "max-cache-age", "verbose"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newTreeCommand(v),
		newReposCommand(v),
		newCachedCommand(v),
		newInvalidateCommand(v),
		newSweepCommand(v),
	)

	return root
}

// app bundles the wired-up library pieces behind a command.
type app struct {
	syncer *ghtree.Syncer
	store  *cache.Store
	logger *zap.Logger
}

func (a *app) close() {
	_ = a.logger.Sync()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close cache store", zap.Error(err))
	}
}

func newApp(v *viper.Viper) (*app, error) {
	logger, err := newLogger(v.GetBool("verbose"))
	if err != nil {
		return nil, err
	}

	var providerOpts []sdk.Option
	if token := v.GetString("token"); token != "" {
		providerOpts = append(providerOpts, sdk.WithToken(token))
	}
	if baseURL := v.GetString("base-url"); baseURL != "" {
		providerOpts = append(providerOpts, sdk.WithBaseURL(baseURL))
	}
	provider, err := sdk.NewSDKProvider(providerOpts...)
	if err != nil {
		return nil, err
	}

	dir := v.GetString("cache-dir")
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to determine cache directory: %w", err)
		}
		dir = filepath.Join(base, "ghtree")
	}

	store, err := cache.Open(filepath.Join(dir, "ghtree.db"), cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	syncer, err := ghtree.NewSyncer(provider, store,
		ghtree.WithTTL(v.GetDuration("ttl")),
		ghtree.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{syncer: syncer, store: store, logger: logger}, nil
}

func newTreeCommand(v *viper.Viper) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "tree <owner>/<repo>[@ref]",
		Short: "print the file tree of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ghtree.ParseRepositoryRef(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			var opts []ghtree.ResolveOption
			if force {
				opts = append(opts, ghtree.WithForceRefresh())
			}

			var result *ghtree.Result
			if ref.Ref == "" {
				result, err = a.syncer.ResolveDefault(cmd.Context(), ref.Owner, ref.Name, opts...)
			} else {
				result, err = a.syncer.Resolve(cmd.Context(), ref, opts...)
			}
			if err != nil {
				return err
			}

			if result.ServedStale {
				msg := "warning: serving stale snapshot"
				if !result.RetryAt.IsZero() {
					msg += fmt.Sprintf(" (retry after %s)", result.RetryAt.Format(time.RFC3339))
				}
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}

			return result.Tree.Walk(func(path string, node *ghtree.TreeNode) error {
				name := node.Name
				if node.IsDir() {
					name += "/"
				}
				indent := strings.Repeat("  ", strings.Count(path, "/"))
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", indent, name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore the cache and fetch unconditionally")
	return cmd
}

func newReposCommand(v *viper.Viper) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "repos <owner>",
		Short: "list repositories of a user or organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			var opts []ghtree.ResolveOption
			if force {
				opts = append(opts, ghtree.WithForceRefresh())
			}

			repos, err := a.syncer.Repositories(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}

			for _, repo := range repos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", repo.FullName, repo.DefaultBranch)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore the cache and fetch unconditionally")
	return cmd
}

func newCachedCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cached <owner>",
		Short: "list locally cached repository refs for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			refs, err := a.syncer.CachedRefs(args[0])
			if err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	}
}

func newInvalidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <owner>/<repo>@<ref>",
		Short: "drop the cached snapshot for a ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := ghtree.ParseRepositoryRef(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			return a.syncer.Invalidate(ref)
		},
	}
}

func newSweepCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "remove cached records past the maximum age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.store.Sweep(v.GetDuration("max-cache-age"))
			if err != nil {
				return err
			}

			stats, err := a.store.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records, %d remaining (%d bytes)\n",
				removed, stats.TreeRecords+stats.RepoListRecords, stats.SizeBytes)
			return nil
		},
	}
}
