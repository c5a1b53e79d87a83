// cachectl is an operator tool for the TravelBlogr caching layer. It reads
// the same YAML config the application uses, so what it probes is exactly
// what production talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/travelblogr/go-common/cache"
	"github.com/travelblogr/go-common/config"
	"github.com/travelblogr/go-common/ratelimit"
	"github.com/travelblogr/go-common/store"
)

var configPath string

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return cfg.NewStore(ctx)
}

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Inspect and maintain the TravelBlogr cache",
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Round-trip a throwaway entry through the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		// A unique key per probe so concurrent probes never collide.
		key, err := cache.BuildKey("probe", uuid.NewString())
		if err != nil {
			return err
		}
		start := time.Now()
		if err := st.Set(ctx, key, []byte("ok"), time.Minute); err != nil {
			return err
		}
		found, _, err := st.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("probe entry %s not found after set", key)
		}
		if err := st.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Printf("store ok, round trip %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush <kind> [params...]",
	Short: "Delete the cache entry for a resource",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		params := make([]any, 0, len(args)-1)
		for _, arg := range args[1:] {
			params = append(params, arg)
		}
		key, err := cache.BuildKey(cache.Kind(args[0]), params...)
		if err != nil {
			return err
		}
		if err := st.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", key)
		return nil
	},
}

var quotaCmd = &cobra.Command{
	Use:   "quota <api> <caller>",
	Short: "Consume one unit of an API budget and show what remains",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		limits, err := cfg.Limits()
		if err != nil {
			return err
		}
		limiter, err := ratelimit.New(st, limits, cfg.NewLogger())
		if err != nil {
			return err
		}
		decision, err := limiter.CheckAndConsume(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("allowed=%t remaining=%d/%d", decision.Allowed, decision.Remaining, decision.Limit)
		if decision.Degraded {
			fmt.Printf(" (degraded: store unreachable)")
		}
		fmt.Println()
		return nil
	},
}

var ttlCmd = &cobra.Command{
	Use:   "ttl",
	Short: "Show the configured TTL per resource kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		policy, err := cfg.TTLPolicy()
		if err != nil {
			return err
		}
		for _, kind := range policy.Kinds() {
			ttl, err := policy.TTLFor(kind)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %s\n", kind, ttl)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "travelblogr.yaml", "path to config file")
	rootCmd.AddCommand(probeCmd, flushCmd, quotaCmd, ttlCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
