package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemResult_DurationMarshalsAsMilliseconds(t *testing.T) {
	item := &ItemResult{
		URL:      "https://shop.example/item/1",
		Kind:     "product",
		Success:  true,
		Duration: 1500 * time.Millisecond,
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.EqualValues(t, 1500, fields["duration_ms"])

	var back ItemResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1500*time.Millisecond, back.Duration)
}

func TestBatchResult_DurationMarshalsAsMilliseconds(t *testing.T) {
	res := &BatchResult{
		Items:    []*ItemResult{{URL: "https://a.example", Success: true, Duration: 250 * time.Millisecond}},
		Duration: 42 * time.Second,
	}
	res.Tally()

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.EqualValues(t, 42000, fields["duration_ms"])

	items, ok := fields["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.EqualValues(t, 250, first["duration_ms"])
}
