package integration

import (
	"context"
	"path/filepath"
	"testing"

	"corpusnorm/internal/config"
	"corpusnorm/internal/logger"
	"corpusnorm/internal/metrics"
	"corpusnorm/internal/models"
	"corpusnorm/internal/normalizer"
	"corpusnorm/internal/pipeline"
	"corpusnorm/internal/reader"
	"corpusnorm/pkg/metadata"
)

var formats = []string{"csv", "jsonl", "xlsx"}

// readBack parses an emitted file and validates it against the canonical schema.
func readBack(t *testing.T, path string) []models.Record {
	t.Helper()

	file, err := reader.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}

	p, err := normalizer.NewProcessor(config.IdentitySource("readback"))
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	records := make([]models.Record, 0, len(file.Rows))

	for _, row := range file.Rows {
		rec, err := p.Process(row)
		if err != nil {
			t.Fatalf("%s:%d does not validate: %v", path, row.Line, err)
		}

		records = append(records, rec)
	}

	return records
}

func TestNormalizeFlow_Fixtures(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join("..", "..", "configs", "corpusnorm.yaml"))
	if err != nil {
		t.Fatalf("Failed to load example config: %v", err)
	}

	out := t.TempDir()
	sourceDir := filepath.Join("..", "fixtures", "sources")

	p := pipeline.New(cfg, logger.Discard(), metrics.New())

	report, err := p.Normalize(context.Background(), sourceDir, out)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if report.HasFatal() {
		t.Fatalf("Unexpected fatal findings: %+v", report.Findings)
	}

	// 1. Per-source statistics
	wantAccepted := map[string]int{
		"us_state_department": 3,
		"china_mfa":           3,
		"whitehouse":          2,
	}

	if len(report.Sources) != len(wantAccepted) {
		t.Fatalf("Expected %d sources, got %d", len(wantAccepted), len(report.Sources))
	}

	for _, s := range report.Sources {
		if s.Accepted != wantAccepted[s.Source] {
			t.Errorf("%s: expected %d accepted, got %d", s.Source, wantAccepted[s.Source], s.Accepted)
		}
	}

	kinds := report.CountByKind()
	if kinds[models.KindDuplicate] != 1 {
		t.Errorf("Expected 1 duplicate, got %d", kinds[models.KindDuplicate])
	}

	if kinds[models.KindSchemaViolation] != 1 {
		t.Errorf("Expected 1 schema violation, got %d", kinds[models.KindSchemaViolation])
	}

	if kinds[models.KindCoverageGap] == 0 {
		t.Error("Expected coverage gaps for china_mfa")
	}

	// 2. Every format carries the same records
	for source := range wantAccepted {
		base := readBack(t, filepath.Join(out, source+".csv"))

		for _, format := range formats[1:] {
			other := readBack(t, filepath.Join(out, source+"."+format))

			if len(other) != len(base) {
				t.Fatalf("%s.%s: expected %d records, got %d", source, format, len(base), len(other))
			}

			for i := range base {
				if other[i] != base[i] {
					t.Errorf("%s.%s record %d differs:\n csv: %+v\n %s: %+v", source, format, i, base[i], format, other[i])
				}
			}
		}
	}

	// 3. The reference briefing appears identically everywhere
	want := models.Record{
		PublishTime: "2021-03-01",
		Type:        "press briefing",
		Title:       "Daily Briefing",
		Content:     "Q: ... A: ...",
		SourceURL:   "https://example.gov/1",
	}

	for _, format := range formats {
		records := readBack(t, filepath.Join(out, "us_state_department."+format))
		if records[0] != want {
			t.Errorf("%s: expected %+v, got %+v", format, want, records[0])
		}

		if records[1].Content != "MR PRICE: Good afternoon.\nQUESTION: Thank you, Ned." {
			t.Errorf("%s: HTML content not reduced to text: %q", format, records[1].Content)
		}
	}

	mfa := readBack(t, filepath.Join(out, "china_mfa.jsonl"))
	if mfa[0].PublishTime != "2024-01-02" || mfa[0].Type != "regular press conference" {
		t.Errorf("Unexpected MFA record: %+v", mfa[0])
	}

	if mfa[1].Content != "答：全文\n第二段" {
		t.Errorf("Unexpected joined content: %q", mfa[1].Content)
	}

	if mfa[2].PublishTime != "2025-01-10" {
		t.Errorf("Expected 2025 update record last, got %+v", mfa[2])
	}

	// 4. Manifest
	if ok, err := metadata.Verify(out); !ok || err != nil {
		t.Errorf("Manifest verification failed: %v", err)
	}
}
