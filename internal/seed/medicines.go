// Package seed loads reference data from CSV files: the medicine catalog and
// the drug interaction table.
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

	"medeasy/rx/internal/database"
)

// LoadMedicines ingests the catalog CSV, skipping rows whose brand id is
// already present. Columns follow the public brand export: brand id, brand
// name, type, slug, dosage form, generic, strength, manufacturer, package.
func LoadMedicines(ctx context.Context, db *database.DB, csvPath string, logger *zap.Logger) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open medicine catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return loadMedicines(ctx, db, file, logger)
}

func loadMedicines(ctx context.Context, db *database.DB, src io.Reader, logger *zap.Logger) (int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read medicine header: %w", err)
	}

	rows := 0
	err := db.WithTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx)
		insert := q.Rebind(`INSERT INTO medicines (brand_id, brand_name, type, generic_name, manufacturer)
            VALUES (?, ?, ?, ?, ?) ON CONFLICT (brand_id) DO NOTHING`)
		for line := 2; ; line++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				logger.Warn("skipping unreadable medicine row", zap.Int("line", line), zap.Error(err))
				continue
			}
			if len(record) < 9 {
				continue
			}
			brandName := strings.TrimSpace(record[1])
			if brandName == "" {
				continue
			}
			brandID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
			if err != nil {
				logger.Warn("skipping medicine without brand id", zap.Int("line", line), zap.String("brand_name", brandName))
				continue
			}
			res, err := q.ExecContext(ctx, insert,
				brandID, brandName, strings.TrimSpace(record[2]),
				strings.TrimSpace(record[5]), strings.TrimSpace(record[7]))
			if err != nil {
				return fmt.Errorf("insert medicine %q: %w", brandName, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				rows++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	logger.Info("seeded medicine catalog", zap.Int("rows", rows))
	return rows, nil
}
