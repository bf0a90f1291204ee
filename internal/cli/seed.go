package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medeasy/rx/internal/seed"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Medicines    string
	Interactions string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the medicine catalog and interaction table",
		Long: `Load reference data from CSV files. Without flags the paths from
MEDICINE_CSV and INTERACTION_CSV are used. Medicines are loaded first since
interactions reference them.

Example:
  rx seed --medicines assets/medicine.csv --interactions assets/interactions.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Medicines, "medicines", "", "medicine catalog CSV")
	cmd.Flags().StringVar(&opts.Interactions, "interactions", "", "drug interaction CSV")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *SeedOptions) error {
	medicines, interactions := opts.Medicines, opts.Interactions
	if medicines == "" && interactions == "" {
		medicines, interactions = opts.Config.MedicineCSV, opts.Config.InteractionCSV
	}

	logger, db, err := opts.open()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer db.Close()

	ctx := cmd.Context()
	if medicines != "" {
		if _, err := seed.LoadMedicines(ctx, db, medicines, logger); err != nil {
			return err
		}
	}
	if interactions != "" {
		if _, err := seed.LoadInteractions(ctx, db, interactions, logger); err != nil {
			return err
		}
	}
	logger.Info("seed finished", zap.String("medicines", medicines), zap.String("interactions", interactions))
	return nil
}
