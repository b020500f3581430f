package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-id",
	Short: "Identify known people in photos",
	Long: `face-id builds a gallery of known people from reference photos (one face per
photo, the file name is the person's name), caches their face embeddings on disk
and labels the faces found in new photos with the nearest known identity.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("cache-dir", "", "Embedding cache directory (default from FACEID_CACHE_DIR or .cache)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Always compute embeddings, never read or write the cache")
	rootCmd.PersistentFlags().String("backend", "", "Recognizer backend: http or dlib")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
