// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/manifold-inc/manifold-sdk/lib/utils"
)

// PredictionRow is one recorded exchange outcome. LabelIndex and Confidence
// are nil when the exchange ended without a prediction.
type PredictionRow struct {
	ExchangeID string
	Model      string
	Task       string
	LabelIndex *int
	LabelName  string
	Confidence *float64
	ErrorKind  string
	InputBytes int
	ClassifyMs int64
	CreatedAt  time.Time
}

type DailyStats struct {
	Date            string
	Model           string
	Task            string
	RequestCount    uint64
	PredictionCount uint64
	ErrorCount      uint64
	InputBytes      uint64
	ClassifyMs      int64
}

// Store writes prediction batches to MySQL.
type Store struct {
	DB *sql.DB
}

func (s *Store) SavePredictions(ctx context.Context, rows []PredictionRow) error {
	if len(rows) == 0 {
		return nil
	}
	predSQL, predVals, statsSQL, statsVals := buildPredictionInserts(rows)
	return ExecuteTransaction(ctx, s.DB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, predSQL, predVals...); err != nil {
				return utils.Wrap("failed to save predictions", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, statsSQL, statsVals...); err != nil {
				return utils.Wrap("failed to save daily stats", err)
			}
			return nil
		},
	})
}

func buildPredictionInserts(rows []PredictionRow) (string, []any, string, []any) {
	predSQL := `INSERT INTO prediction (
		exchange_id, model, task, label_index, label_name,
		confidence, error_kind, input_bytes, classify_ms, created_at
	) VALUES`

	statsSQL := `INSERT INTO daily_stats (
		date, model, task, request_count, prediction_count, error_count, input_bytes, classify_ms
	) VALUES`

	aggregated := make(map[string]*DailyStats)
	var order []string
	predVals := make([]any, 0, len(rows)*10)

	for _, r := range rows {
		date := r.CreatedAt.UTC().Format("2006-01-02")
		key := date + "|" + r.Model + "|" + r.Task
		stats, ok := aggregated[key]
		if !ok {
			stats = &DailyStats{Date: date, Model: r.Model, Task: r.Task}
			aggregated[key] = stats
			order = append(order, key)
		}
		stats.RequestCount++
		if r.LabelIndex != nil {
			stats.PredictionCount++
		}
		if r.ErrorKind != "" {
			stats.ErrorCount++
		}
		stats.InputBytes += uint64(r.InputBytes)
		stats.ClassifyMs += r.ClassifyMs

		var errKind *string
		if r.ErrorKind != "" {
			errKind = &r.ErrorKind
		}
		var labelName *string
		if r.LabelName != "" {
			labelName = &r.LabelName
		}
		predSQL += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?),"
		predVals = append(predVals,
			r.ExchangeID, r.Model, r.Task, r.LabelIndex, labelName,
			r.Confidence, errKind, r.InputBytes, r.ClassifyMs, r.CreatedAt,
		)
	}

	statsVals := make([]any, 0, len(order)*8)
	for _, key := range order {
		s := aggregated[key]
		statsSQL += "(?, ?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, s.Date, s.Model, s.Task, s.RequestCount, s.PredictionCount, s.ErrorCount, s.InputBytes, s.ClassifyMs)
	}

	predSQL = strings.TrimSuffix(predSQL, ",")
	statsSQL = strings.TrimSuffix(statsSQL, ",")
	statsSQL += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		prediction_count = prediction_count + VALUES(prediction_count),
		error_count = error_count + VALUES(error_count),
		input_bytes = input_bytes + VALUES(input_bytes),
		classify_ms = classify_ms + VALUES(classify_ms)`
	return predSQL, predVals, statsSQL, statsVals
}

func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
