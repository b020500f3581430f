package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/registry"
)

var matchCmd = &cobra.Command{
	Use:   "match <photo>...",
	Short: "Identify the people in photos",
	Long: `Detect every face in the given photos and label it with the nearest known identity.
Known identities are loaded from --known (cached embeddings are reused). A face is
labelled "Unknown" when its nearest identity is farther away than the tolerance.

Examples:
  # Identify faces in a photo
  face-id match --known ./people party.jpg

  # Stricter matching and the three closest identities per face
  face-id match --known ./people --tolerance 0.5 --candidates 3 party.jpg

  # JSON output
  face-id match --known ./people --json party.jpg beach.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringSlice("known", nil, "Reference photo or directory of known people (repeatable)")
	matchCmd.Flags().Float64("tolerance", 0, "Maximum distance accepted as a match (default from FACEID_TOLERANCE, else 1.0 for http and 0.6 for dlib)")
	matchCmd.Flags().Int("candidates", 0, "Also list the N closest identities for each face")
	matchCmd.Flags().Bool("json", false, "Output results as JSON")
	_ = matchCmd.MarkFlagRequired("known")
}

type faceOutput struct {
	Label      string                `json:"label"`
	Box        []float64             `json:"box"`      // [x1, y1, x2, y2] pixels
	Relative   []float64             `json:"relative"` // [x, y, w, h] relative to the photo
	Distance   *float64              `json:"distance,omitempty"`
	Candidates []facematch.Candidate `json:"candidates,omitempty"`
}

type photoOutput struct {
	Path  string       `json:"path"`
	Faces []faceOutput `json:"faces"`
	Error string       `json:"error,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	known := mustGetStringSlice(cmd, "known")
	candidates := mustGetInt(cmd, "candidates")
	asJSON := mustGetBool(cmd, "json")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tolerance := a.cfg.MatchTolerance()
	if cmd.Flags().Changed("tolerance") {
		tolerance = mustGetFloat64(cmd, "tolerance")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg := registry.New()
	failures, err := loadReferences(ctx, a, known, reg, !asJSON)
	if err != nil {
		return err
	}
	if len(failures) > 0 && !asJSON {
		printFailures(failures)
	}
	if reg.Len() == 0 {
		a.logger.Warn("no known identities loaded, every face will be Unknown")
	}

	matcher := facematch.NewMatcher(a.detector,
		facematch.WithComparer(facematch.ToleranceComparer{Tolerance: tolerance}),
		facematch.WithLogger(a.logger.Named("matcher")),
	)
	var index *facematch.CandidateIndex
	if candidates > 0 {
		index = facematch.NewCandidateIndex(reg)
	}

	var outputs []photoOutput
	var failed int
	for _, path := range args {
		out := identifyPhoto(ctx, a.detector, matcher, index, candidates, reg, path)
		if out.Error != "" {
			failed++
		}
		outputs = append(outputs, out)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
	} else {
		printMatches(outputs)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d photo(s) could not be processed", failed, len(args))
	}
	return nil
}

func identifyPhoto(ctx context.Context, detector facematch.Detector, matcher *facematch.Matcher, index *facematch.CandidateIndex, k int, reg *registry.Registry, path string) photoOutput {
	out := photoOutput{Path: path, Faces: []faceOutput{}}

	img, err := imageio.Loader{}.LoadImage(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	faces, err := detector.Detect(ctx, img)
	if err != nil {
		out.Error = fmt.Sprintf("failed to detect faces: %v", err)
		return out
	}

	results := matcher.MatchFaces(faces, reg)
	for i, r := range results {
		fo := faceOutput{
			Label:    r.Label,
			Box:      r.Box.Corners(),
			Relative: r.Box.Relative(img.Width, img.Height),
		}
		if !math.IsInf(r.Distance, 0) {
			d := r.Distance
			fo.Distance = &d
		}
		if index != nil {
			fo.Candidates = index.Nearest(faces[i].Embedding, k)
		}
		out.Faces = append(out.Faces, fo)
	}
	return out
}

func printMatches(outputs []photoOutput) {
	for _, out := range outputs {
		if out.Error != "" {
			fmt.Printf("\n%s: error: %s\n", out.Path, out.Error)
			continue
		}
		fmt.Printf("\n%s: %d face(s)\n", out.Path, len(out.Faces))
		for i, f := range out.Faces {
			box, _ := facematch.BBoxFromSlice(f.Box)
			distance := "-"
			if f.Distance != nil {
				distance = fmt.Sprintf("%.4f", *f.Distance)
			}
			fmt.Printf("  #%d %-20s %-24s distance %s\n", i+1, f.Label, box, distance)
			for _, c := range f.Candidates {
				fmt.Printf("       candidate %-20s %.4f\n", c.Name, c.Distance)
			}
		}
	}
}
