package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildPredictionInserts(t *testing.T) {
	idx, conf := 282, 0.93
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rows := []PredictionRow{
		{ExchangeID: "a", Model: "mobilenet", Task: "image", LabelIndex: &idx, Confidence: &conf, InputBytes: 100, ClassifyMs: 12, CreatedAt: created},
		{ExchangeID: "b", Model: "mobilenet", Task: "image", ErrorKind: "input_decode", InputBytes: 20, CreatedAt: created},
		{ExchangeID: "c", Model: "mobilenet", Task: "image", LabelIndex: &idx, Confidence: &conf, InputBytes: 5, ClassifyMs: 3, CreatedAt: created.Add(24 * time.Hour)},
	}

	predSQL, predVals, statsSQL, statsVals := buildPredictionInserts(rows)

	assert.Equal(t, 3, strings.Count(predSQL, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	assert.False(t, strings.HasSuffix(predSQL, ","))
	assert.Len(t, predVals, 30)
	assert.Equal(t, "a", predVals[0])
	assert.Nil(t, predVals[4].(*string))
	assert.Equal(t, "input_decode", *predVals[16].(*string))

	assert.Equal(t, 2, strings.Count(statsSQL, "(?, ?, ?, ?, ?, ?, ?, ?)"))
	assert.Contains(t, statsSQL, "ON DUPLICATE KEY UPDATE")
	assert.Equal(t, []any{"2026-10-19", "mobilenet", "image", uint64(2), uint64(1), uint64(1), uint64(120), int64(12)}, statsVals[:8])
	assert.Equal(t, "2026-10-20", statsVals[8])
}
