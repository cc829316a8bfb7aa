package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/record"
)

func newTestStore(t *testing.T, cleanupShots bool) *Store {
	t.Helper()
	s, err := NewStore(config.StorageConfig{
		OutputDir:    t.TempDir(),
		KeepDays:     7,
		CleanupShots: cleanupShots,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testTarget() models.Target {
	return models.Target{URL: "https://shop.example/item/1", Kind: "product"}
}

func newArtifact() *models.CaptureArtifact {
	return &models.CaptureArtifact{
		PNG:        []byte{0x89, 0x50, 0x4e, 0x47},
		Engine:     "rod",
		CapturedAt: time.Now(),
	}
}

func TestPersistArtifact(t *testing.T) {
	s := newTestStore(t, false)
	a := newArtifact()

	require.NoError(t, s.PersistArtifact(a, testTarget()))
	require.NotEmpty(t, a.Path)
	assert.True(t, strings.HasSuffix(a.Path, ".png"))

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, a.PNG, data)
}

func TestPersistRecord(t *testing.T) {
	s := newTestStore(t, false)
	a := newArtifact()
	rec := models.Record{"product_name": "Widget", "price": "$9.99"}

	require.NoError(t, s.PersistRecord(rec, testTarget(), a))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	var jsonFile string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			jsonFile = filepath.Join(s.dir, e.Name())
		}
	}
	require.NotEmpty(t, jsonFile)

	data, err := os.ReadFile(jsonFile)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://shop.example/item/1", doc["url"])
	assert.Equal(t, "product", doc["kind"])
	assert.Equal(t, "Widget", doc["record"].(map[string]any)["product_name"])
}

func TestMaybeDiscard(t *testing.T) {
	s := newTestStore(t, true)
	a := newArtifact()
	require.NoError(t, s.PersistArtifact(a, testTarget()))
	path := a.Path

	s.MaybeDiscard(a)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, a.Path)
}

func TestMaybeDiscard_KeepsShotByDefault(t *testing.T) {
	s := newTestStore(t, false)
	a := newArtifact()
	require.NoError(t, s.PersistArtifact(a, testTarget()))

	s.MaybeDiscard(a)

	_, err := os.Stat(a.Path)
	assert.NoError(t, err)
}

func TestSweep_RemovesExpiredFiles(t *testing.T) {
	s := newTestStore(t, false)

	old := filepath.Join(s.dir, "aaaa_20200101T000000.png")
	require.NoError(t, os.WriteFile(old, []byte{1}, 0o644))
	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, stale, stale))

	fresh := newArtifact()
	require.NoError(t, s.PersistArtifact(fresh, testTarget()))

	deleted := s.Sweep()
	assert.Equal(t, 1, deleted)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.Path)
	assert.NoError(t, err)
}

func sampleBatch() *models.BatchResult {
	res := &models.BatchResult{
		Items: []*models.ItemResult{
			{
				URL:     "https://shop.example/item/1",
				Kind:    "product",
				Success: true,
				Record: models.Record{
					"product_name": "Widget",
					"price":        "$9.99",
					"rating":       4.5,
					"key_features": []string{"small", "blue"},
				},
				Attempts: 1,
			},
			{
				URL:  "https://shop.example/item/2",
				Kind: "product",
				Failure: &models.ErrorDetail{
					Kind:    models.FailCapture,
					Stage:   models.StageCapture,
					Message: "all engines exhausted",
				},
				Attempts: 4,
			},
		},
	}
	res.Tally()
	return res
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, sampleBatch()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	summary := doc["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["total"])
	assert.Equal(t, float64(1), summary["succeeded"])

	items := doc["items"].(map[string]any)
	ok := items["https://shop.example/item/1"].(map[string]any)
	assert.Equal(t, true, ok["success"])
	assert.Equal(t, "Widget", ok["record"].(map[string]any)["product_name"])

	bad := items["https://shop.example/item/2"].(map[string]any)
	assert.Equal(t, false, bad["success"])
	assert.NotNil(t, bad["error"])
}

func TestExportCSV_SchemaColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, sampleBatch(), "product", record.NewValidator()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "url,status,error,product_name,price"))
	assert.Contains(t, lines[1], "Widget")
	assert.Contains(t, lines[1], "small; blue")
	assert.Contains(t, lines[2], "failed")
	assert.Contains(t, lines[2], "CAPTURE_FAILURE")
}

func TestExportCSV_UnknownKindUsesRecordKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, sampleBatch(), "mystery", record.NewValidator()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// Sorted union of record keys.
	assert.Equal(t, "url,status,error,key_features,price,product_name,rating", lines[0])
}
