package runs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
)

var exportHeader = []string{
	"row_number",
	"product",
	"status",
	"hts_code",
	"confidence",
	"tariff_rate",
	"origin",
	"materials",
	"cost",
	"error",
}

// Export flattens a terminal run's items to CSV, one row per item. This is a
// pure projection of the final snapshot; no run state changes.
func (o *Orchestrator) Export(ctx context.Context, id uuid.UUID, w io.Writer) error {
	v, err := o.view(ctx, id)
	if err != nil {
		return err
	}

	if !v.Run.Status.Terminal() {
		return ErrNotTerminal
	}
	if v.Snapshot == nil {
		return ErrNotLive
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, item := range v.Snapshot.Items {
		if err := cw.Write(exportRow(item)); err != nil {
			return fmt.Errorf("write row %d: %w", item.RowNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func exportRow(item classify.BulkItem) []string {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := item.ExtractedData[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}

	row := []string{
		strconv.Itoa(item.RowNumber),
		get("product_name", "name"),
		string(item.Status),
		"",
		"",
		"",
		get("origin", "country_of_origin"),
		get("materials", "material_composition"),
		get("cost", "unit_cost", "price"),
		item.Error,
	}

	if item.Result != nil {
		row[3] = item.Result.Primary.HTS
		row[4] = strconv.Itoa(item.Result.Primary.Confidence)
		row[5] = item.Result.Primary.TariffRate
	}

	return row
}
