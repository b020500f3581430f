package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/registry"
)

var loadCmd = &cobra.Command{
	Use:   "load <path>...",
	Short: "Compute and cache embeddings for reference photos",
	Long: `Load reference photos of known people and store their face embeddings in the cache.
Each path is either a single image or a directory that is scanned recursively for
.jpg, .jpeg and .png files. The identity name is the file name without extension.

Photos already in the cache are not sent to the recognizer again.

Examples:
  # Warm the cache for a directory of reference photos
  face-id load ./people

  # Use a different cache directory
  face-id load ./people --cache-dir /var/cache/face-id

  # Fail when any photo could not be loaded
  face-id load ./people --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().Bool("strict", false, "Exit with an error if any reference photo fails to load")
}

func runLoad(cmd *cobra.Command, args []string) error {
	strict := mustGetBool(cmd, "strict")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := registry.New()
	failures, err := loadReferences(cmd.Context(), a, args, reg, true)
	if err != nil {
		return err
	}

	fmt.Printf("\nKnown identities: %d\n", reg.Len())
	if a.cache != nil {
		fmt.Printf("Cache directory: %s\n", a.cache.Dir())
	}
	if len(failures) > 0 {
		printFailures(failures)
		if strict {
			return fmt.Errorf("%d reference photo(s) failed to load", len(failures))
		}
	}
	return nil
}

// loadReferences loads every path into reg and returns the collected per-file failures.
func loadReferences(ctx context.Context, a *app, paths []string, reg *registry.Registry, verbose bool) ([]registry.Failure, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var failures []registry.Failure
	for _, path := range paths {
		files, err := a.loader().Scan(path)
		if err != nil {
			return nil, err
		}

		var opts []registry.LoaderOption
		if verbose && len(files) > 1 {
			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Loading "+path),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
			opts = append(opts, registry.WithProgress(func(string) { _ = bar.Add(1) }))
		}

		report, err := a.loader(opts...).Load(ctx, path, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if verbose {
			fmt.Printf("%s: %d loaded (%d from cache, %d computed), %d failed\n",
				path, len(report.Loaded), report.CacheHits, report.Computed, len(report.Failures))
		}
		failures = append(failures, report.Failures...)
	}
	return failures, nil
}

func printFailures(failures []registry.Failure) {
	fmt.Printf("\nFailed reference photos: %d\n", len(failures))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tERROR")
	fmt.Fprintln(w, "----\t----\t-----")
	for _, f := range failures {
		fmt.Fprintf(w, "%s\t%s\t%v\n", f.Name, f.Path, f.Err)
	}
	w.Flush()
}
