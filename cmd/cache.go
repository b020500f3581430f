package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/cache"
	"github.com/kozaktomas/face-id/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embedding cache commands",
	Long:  `Commands for inspecting the on-disk embedding cache.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached identities",
	Long: `List the identities stored in the embedding cache.
With --verify every entry is read back and reported as ok, miss (wrong dimension,
recomputed on the next load) or corrupt (not a whole number of elements).`,
	Args: cobra.NoArgs,
	RunE: runCacheList,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)

	cacheListCmd.Flags().Bool("verify", false, "Read every entry and report its status")
}

func runCacheList(cmd *cobra.Command, args []string) error {
	verify := mustGetBool(cmd, "verify")

	cfg := config.Load()
	applyGlobalFlags(cmd, cfg)
	if !cfg.Cache.Enabled {
		return fmt.Errorf("caching is disabled")
	}

	c, err := cache.New(cfg.Cache.Dir,
		cache.WithDimension(cfg.EmbeddingDimension()),
		cache.WithElementWidth(cfg.Cache.ElementWidth),
	)
	if err != nil {
		return err
	}

	names, err := c.List()
	if err != nil {
		return err
	}

	fmt.Printf("Cache directory: %s\n", c.Dir())
	fmt.Printf("Entries: %d\n\n", len(names))
	if len(names) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if !verify {
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
		return w.Flush()
	}

	var bad int
	fmt.Fprintln(w, "NAME\tSTATUS\tDETAIL")
	for _, name := range names {
		status, detail := entryStatus(c, name)
		if status != "ok" {
			bad++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, status, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if bad > 0 {
		fmt.Printf("\n%d of %d entries are unusable\n", bad, len(names))
	}
	return nil
}

func entryStatus(c *cache.Cache, name string) (string, string) {
	emb, err := c.Read(name)
	switch {
	case err == nil:
		return "ok", fmt.Sprintf("%d elements", len(emb))
	case errors.Is(err, cache.ErrCacheCorrupt):
		return "corrupt", err.Error()
	case errors.Is(err, cache.ErrCacheMiss):
		return "miss", err.Error()
	default:
		return "error", err.Error()
	}
}
