package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every entry matching filter to a parquet file at path
// and returns the number of rows written. filter.Limit is ignored.
func (j *Journal) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	defer file.Close()
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(parquetRow), 1)
	if err != nil {
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	after := filter.AfterSeq
	for {
		page, err := j.List(ctx, Filter{Type: filter.Type, AfterSeq: after, Limit: MaxListLimit})
		if err != nil {
			_ = pw.WriteStop()
			return written, err
		}
		for _, entry := range page {
			attrs, err := json.Marshal(entry.Attributes)
			if err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("journal: encode entry %d: %w", entry.Seq, err)
			}
			row := &parquetRow{
				Seq:        int64(entry.Seq),
				ID:         entry.ID,
				Type:       entry.Type,
				Attributes: string(attrs),
				CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("journal: write parquet row: %w", err)
			}
			written++
			after = entry.Seq
		}
		if len(page) < MaxListLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("journal: finish parquet: %w", err)
	}
	j.logger.Info("journal exported", slog.String("path", path), slog.Int("rows", written))
	return written, nil
}
