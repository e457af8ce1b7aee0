package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"university-assistant/internal/common/config"
	"university-assistant/internal/common/database"
	"university-assistant/internal/common/logger"
)

// kb-importer loads knowledge base entries from a CSV file with
// question/answer/source columns. Rows missing a question or answer are
// skipped.
func main() {
	file := flag.String("file", "", "path to the CSV file to import")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	if *file == "" {
		zapLog.Fatal("missing -file argument")
	}

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()

	f, err := os.Open(*file)
	if err != nil {
		zapLog.Fatal("could not open file", zap.Error(err))
	}
	defer f.Close()

	imported, skipped, err := importCSV(context.Background(), pg, f, zapLog)
	if err != nil {
		zapLog.Fatal("import failed", zap.Error(err))
	}

	fmt.Printf("Imported %d entries (%d skipped)\n", imported, skipped)
}

func importCSV(ctx context.Context, pg *database.PostgresClient, r io.Reader, log *zap.Logger) (int, int, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("reading header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	qi, ok := cols["question"]
	if !ok {
		return 0, 0, fmt.Errorf("missing question column")
	}
	ai, ok := cols["answer"]
	if !ok {
		return 0, 0, fmt.Errorf("missing answer column")
	}
	si, hasSource := cols["source"]

	imported, skipped := 0, 0
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("reading row %d: %w", line, err)
		}

		question := strings.TrimSpace(field(row, qi))
		answer := strings.TrimSpace(field(row, ai))
		if question == "" || answer == "" {
			log.Warn("skipping incomplete row", zap.Int("line", line))
			skipped++
			continue
		}

		var source interface{}
		if hasSource {
			if v := strings.TrimSpace(field(row, si)); v != "" {
				source = v
			}
		}

		_, err = pg.Exec(ctx,
			`INSERT INTO ai_knowledgebaseentry (question, answer, source, created_at)
			VALUES ($1, $2, $3, NOW())`,
			question, answer, source)
		if err != nil {
			return imported, skipped, fmt.Errorf("inserting row %d: %w", line, err)
		}
		imported++
	}

	return imported, skipped, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
