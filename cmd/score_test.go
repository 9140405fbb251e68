package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/model"
)

const scoreInput = `{"user_id":"u1","amount":12.5,"merchant_name":"Burger Barn","mcc":5814,"timestamp":"2025-03-10T12:00:00Z","channel":"card_present"}

{"user_id":"u1","amount":80,"merchant_name":"Fresh Mart","mcc":5411,"timestamp":"2025-03-10T18:30:00Z","channel":"card_present"}
{"user_id":"u2","amount":-1,"merchant_name":"Fresh Mart","mcc":5411,"timestamp":"2025-03-10T18:30:00Z"}
`

func TestReadScoreRequests(t *testing.T) {
	reqs, err := readScoreRequests(strings.NewReader(scoreInput))
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "Burger Barn", reqs[0].MerchantName)
	assert.Equal(t, 5411, reqs[1].MCC)
}

func TestReadScoreRequests_BadLine(t *testing.T) {
	_, err := readScoreRequests(strings.NewReader("{\"user_id\":\"u1\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestScoreBatch(t *testing.T) {
	env := newTestEnv(t)
	reqs, err := readScoreRequests(strings.NewReader(scoreInput))
	require.NoError(t, err)

	results := scoreBatch(context.Background(), env.Scorer, reqs, 4)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i+1, r.Line)
	}
	require.NotNil(t, results[0].Response)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, []model.ScoreDecision{model.ScoreAllow, model.ScoreBlock}, results[0].Response.Decision)
	require.NotNil(t, results[1].Response)

	assert.Nil(t, results[2].Response)
	assert.NotEmpty(t, results[2].Error)

	// Both u1 charges were posted to the ledger.
	spend, err := env.Store.SpendByCategory(context.Background(), "u1")
	require.NoError(t, err)
	var total float64
	for _, v := range spend {
		total += v
	}
	assert.InDelta(t, 92.5, total, 1e-9)
}

func TestWriteJSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSONLines(&buf, []scoreResult{{Line: 1, Error: "boom"}, {Line: 2}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first scoreResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "boom", first.Error)
}
