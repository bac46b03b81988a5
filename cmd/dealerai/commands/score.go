package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
)

// scoreCmd scores one payload file
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one raw signal payload",
	Long: `Extracts features from a JSON payload and scores it.

The payload is a JSON object of raw signals. --listings adds VIN listing
records (JSON array) used to derive inventory freshness.

Example:
  go run ./cmd/dealerai score --file payload.json
  go run ./cmd/dealerai score --file payload.json --tenant dealer-a --listings vins.json`,
	RunE: runScore,
}

var (
	scoreFile     string
	scoreListings string
	scoreTenant   string
	scoreJSON     bool
)

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "raw signal payload (JSON object)")
	scoreCmd.Flags().StringVar(&scoreListings, "listings", "", "VIN listing records (JSON array)")
	scoreCmd.Flags().StringVar(&scoreTenant, "tenant", "", "score under this tenant's current weights")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the result as JSON")
	_ = scoreCmd.MarkFlagRequired("file")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(scoreFile)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	var vins []contracts.ListingRecord
	if scoreListings != "" {
		raw, err := os.ReadFile(scoreListings)
		if err != nil {
			return fmt.Errorf("read listings: %w", err)
		}
		if err := json.Unmarshal(raw, &vins); err != nil {
			return fmt.Errorf("parse listings: %w", err)
		}
	}

	extraction, err := a.extractor.ExtractJSON(data, vins, features.Metadata{Source: "api"})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	weights := contracts.DefaultWeightVector("")
	if scoreTenant != "" {
		if weights, err = a.loop.CurrentWeights(ctx, scoreTenant); err != nil {
			return fmt.Errorf("load weights: %w", err)
		}
	}

	result, err := a.engine.Score(extraction.Features, &weights)
	if err != nil {
		PrintError(err.Error())
		if len(extraction.Missing) > 0 {
			fmt.Println("\nMissing fields:")
			for _, name := range extraction.Missing {
				label := name
				if spec, ok := features.Lookup(name); ok {
					label = fmt.Sprintf("%s: %s", name, spec.Description)
				}
				fmt.Printf("   • %s\n", label)
			}
		}
		return err
	}

	if scoreJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"result": result, "extraction": extraction})
	}

	PrintHeader(fmt.Sprintf("AI Visibility Score: %.1f", result.Score))
	PrintKeyValue("Weights", fmt.Sprintf("v%d (%s)", weights.Version, weights.Source), 12)
	PrintKeyValue("Completeness", fmt.Sprintf("%.0f%%", extraction.Completeness*100), 12)
	PrintKeyValue("Confidence", fmt.Sprintf("%.2f", extraction.Confidence), 12)
	fmt.Println()

	widths := []int{6, 10, 8}
	PrintTableHeader([]string{"Pillar", "Sub-score", "Weight"}, widths)
	for _, id := range contracts.AllSubScores {
		PrintTableRow([]string{
			string(id),
			formatFloat(result.SubScores[id]),
			fmt.Sprintf("%.3f", weights.Get(id)),
		}, widths)
	}

	if total := result.Penalties.Total(); total > 0 {
		fmt.Println()
		PrintKeyValue("Penalties", formatFloat(total), 12)
	}
	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			PrintWarning(w)
		}
	}
	return nil
}
