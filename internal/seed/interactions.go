package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"medeasy/rx/domain"
	"medeasy/rx/internal/database"
	"medeasy/rx/internal/interaction"
)

// LoadInteractions ingests a CSV of medicine_a, medicine_b, severity,
// description. Pairs may appear in either order; a repeated pair replaces
// the earlier row. A malformed row aborts the load and nothing is stored.
func LoadInteractions(ctx context.Context, db *database.DB, csvPath string, logger *zap.Logger) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open interaction table %s: %w", csvPath, err)
	}
	defer file.Close()
	return loadInteractions(ctx, db, file, logger)
}

func loadInteractions(ctx context.Context, db *database.DB, src io.Reader, logger *zap.Logger) (int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read interaction header: %w", err)
	}

	store := interaction.NewSQLChecker(db)
	rows := 0
	err := db.WithTx(ctx, func(ctx context.Context) error {
		for line := 2; ; line++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			in, err := parseInteraction(record)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if err := store.Put(ctx, in); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			rows++
		}
	})
	if err != nil {
		return 0, err
	}
	logger.Info("seeded interaction table", zap.Int("rows", rows))
	return rows, nil
}

func parseInteraction(record []string) (domain.Interaction, error) {
	if len(record) < 3 {
		return domain.Interaction{}, domain.InvalidArgument("expected medicine_a, medicine_b, severity[, description]")
	}
	a, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return domain.Interaction{}, domain.InvalidArgument("medicine_a must be an id")
	}
	b, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
	if err != nil {
		return domain.Interaction{}, domain.InvalidArgument("medicine_b must be an id")
	}
	severity, err := domain.ParseSeverity(record[2])
	if err != nil {
		return domain.Interaction{}, err
	}
	in := domain.Interaction{MedicineA: a, MedicineB: b, Severity: severity}
	if len(record) > 3 {
		in.Description = strings.TrimSpace(record[3])
	}
	return in, nil
}
