package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusnorm/internal/config"
	"corpusnorm/internal/logger"
	"corpusnorm/internal/metrics"
	"corpusnorm/internal/models"
	"corpusnorm/internal/reader"
	"corpusnorm/internal/reporter"
	"corpusnorm/pkg/metadata"
)

const stateCSV = `publish_time,type,title,content,source_url
2021-03-01,press briefing,Daily Briefing,Q: ... A: ...,https://example.gov/1
2021-03-02,press briefing,Second Briefing,,not a url
2021-09-01,press briefing,Daily Briefing (repeat),"multi
line",https://example.gov/1
2021-03-03,press briefing,,missing title,https://example.gov/3
`

const mfaCSV = `title,question,answer,source_url
2024年1月2日外交部发言人毛宁主持例行记者会,问：关于……,答：我们注意到……,https://www.mfa.gov.cn/1
2024年1月3日外交部发言人毛宁主持例行记者会,,答：没有,https://www.mfa.gov.cn/2
`

const whJSONL = `{"publish_time":"March 1, 2021","type":"statement","title":"Statement","content":"<p>x</p>","source_url":"https://www.whitehouse.gov/1"}
{not json}

{"publish_time":"2021-01-20T12:05:00-05:00","type":"remarks","title":"Remarks","content":"","source_url":"https://www.whitehouse.gov/2"}
`

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{
			Name:  "mfa",
			Files: []string{"mfa_*.csv"},
			Fields: config.FieldMap{
				{Native: "title", Canonical: "title"},
				{Native: "question", Canonical: "content"},
				{Native: "answer", Canonical: "content"},
				{Native: "source_url", Canonical: "source_url"},
			},
			Defaults: map[string]string{"type": "regular press conference"},
			Extract: []config.ExtractRule{{
				Field:    "publish_time",
				From:     "title",
				Pattern:  `(\d{4})年(\d{1,2})月(\d{1,2})日`,
				Template: "$1-$2-$3",
			}},
			DateFormat: "2006-1-2",
		},
		{
			Name:   "partial",
			Files:  []string{"partial.csv"},
			Fields: config.FieldMap{{Native: "title", Canonical: "title"}},
		},
	}
	cfg.Processing.Workers = 2

	return cfg
}

func inputDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	writeInput(t, dir, "state.csv", stateCSV)
	writeInput(t, dir, "mfa_2024.csv", mfaCSV)
	writeInput(t, dir, "nested/wh.jsonl", whJSONL)
	writeInput(t, dir, "partial.csv", "title\nx\n")
	writeInput(t, dir, "broken.xlsx", "not a zip archive")
	writeInput(t, dir, "notes.txt", "ignored")
	writeInput(t, dir, ".hidden/skip.csv", "a\n1\n")

	return dir
}

func newPipeline(cfg *config.Config) *Pipeline {
	return New(cfg, logger.Discard(), metrics.New())
}

func TestDiscover(t *testing.T) {
	sources, err := Discover(inputDir(t), testConfig())
	require.NoError(t, err)

	names := lo.Map(sources, func(s Source, _ int) string { return s.Name() })
	assert.Equal(t, []string{"mfa", "partial", "broken", "wh", "state"}, names)

	assert.Equal(t, []string{"nested/wh.jsonl"}, sources[3].Files)
	assert.Equal(t, "wh", sources[3].Config.Name)
}

func TestDiscover_NameClash(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "mfa.csv", stateCSV)

	sources, err := Discover(dir, testConfig())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "mfa-unmapped", sources[0].Name())
}

func TestDiscover_GeneratedNamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "state.csv", stateCSV)
	writeInput(t, dir, "other.csv", stateCSV)
	writeInput(t, dir, "report.csv", stateCSV)
	writeInput(t, dir, "nested/state.jsonl", whJSONL)

	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		config.IdentitySource("state", "none_*.csv"),
		config.IdentitySource("state-unmapped", "other.csv"),
	}

	sources, err := Discover(dir, cfg)
	require.NoError(t, err)

	names := lo.Map(sources, func(s Source, _ int) string { return s.Name() })
	assert.Equal(t, []string{"state-unmapped", "state-unmapped-2", "report-unmapped"}, names)
	assert.Equal(t, []string{"nested/state.jsonl", "state.csv"}, sources[1].Files, "same stem stays one source")
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), config.Default())
	assert.ErrorIs(t, err, ErrSourceDirMissing)

	file := filepath.Join(t.TempDir(), "file.csv")
	require.NoError(t, os.WriteFile(file, []byte("a\n"), 0o644))

	_, err = Discover(file, config.Default())
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestValidate(t *testing.T) {
	report, err := newPipeline(testConfig()).Validate(context.Background(), inputDir(t))
	require.NoError(t, err)

	assert.True(t, report.HasFatal(), "mapping and I/O failures are fatal")

	stats := lo.SliceToMap(report.Sources, func(s reporter.SourceStats) (string, reporter.SourceStats) { return s.Source, s })

	assert.Equal(t, 4, stats["state"].Read)
	assert.Equal(t, 2, stats["state"].Accepted)
	assert.Equal(t, 2, stats["state"].Skipped)
	assert.Equal(t, 1, stats["state"].Duplicates)
	assert.Equal(t, 1, stats["state"].Gaps)
	assert.Equal(t, "2021-03-01", stats["state"].FirstDate)
	assert.False(t, stats["state"].Failed)

	assert.Equal(t, 2, stats["mfa"].Accepted)
	assert.Equal(t, "2024-01-02", stats["mfa"].FirstDate)

	assert.Equal(t, 3, stats["wh"].Read)
	assert.Equal(t, 1, stats["wh"].Skipped)

	assert.True(t, stats["partial"].Failed)
	assert.True(t, stats["broken"].Failed)

	kinds := report.CountByKind()
	assert.Equal(t, 1, kinds[models.KindDuplicate])
	assert.Equal(t, 3, kinds[models.KindSchemaViolation])
	assert.Equal(t, 1, kinds[models.KindIOFailure])
	assert.Equal(t, 4, kinds[models.KindMappingError], "partial lacks publish_time, type, content and source_url")

	urlViolation, ok := lo.Find(report.Findings, func(f models.Finding) bool {
		return f.Source == "state" && f.Kind == models.KindSchemaViolation && f.Line == 3
	})
	require.True(t, ok)
	assert.Equal(t, models.FieldSourceURL, urlViolation.Field)
	assert.Equal(t, models.SeverityWarning, urlViolation.Severity)
}

func TestValidate_CleanInputHasNoFatal(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "mfa_2024.csv", mfaCSV)

	report, err := newPipeline(testConfig()).Validate(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, report.HasFatal())
}

func TestValidate_Strict(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "state.csv", stateCSV)

	cfg := testConfig()
	cfg.Features.StrictValidation = true

	report, err := newPipeline(cfg).Validate(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, report.HasFatal())
}

func TestValidate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(testConfig()).Validate(ctx, inputDir(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	cfg := testConfig()
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "corpusnorm.prom")

	p := newPipeline(cfg)

	report, err := p.Normalize(context.Background(), inputDir(t), out)
	require.NoError(t, err)

	for _, source := range []string{"state", "mfa", "wh"} {
		for _, format := range []string{"csv", "jsonl", "xlsx"} {
			assert.FileExists(t, filepath.Join(out, source+"."+format))
		}
	}

	assert.NoFileExists(t, filepath.Join(out, "partial.csv"), "aborted sources emit nothing")
	assert.FileExists(t, filepath.Join(out, "broken.csv"), "a source whose only file failed still emits empty files")
	assert.FileExists(t, filepath.Join(out, ReportFileName))
	assert.FileExists(t, cfg.Metrics.Textfile)

	ok, err := metadata.Verify(out)
	require.NoError(t, err)
	assert.True(t, ok)

	manifest, err := metadata.Load(out)
	require.NoError(t, err)
	assert.Equal(t, p.runID, manifest.RunID)
	assert.Equal(t, p.runID, report.RunID)
	assert.False(t, manifest.Validation)

	state, err := reader.ReadFile(filepath.Join(out, "state.jsonl"))
	require.NoError(t, err)
	require.Len(t, state.Rows, 2, "duplicates are kept by default")
	assert.Equal(t, "https://example.gov/1", state.Rows[0].Data["source_url"])
	assert.Equal(t, "multi\nline", state.Rows[1].Data["content"])

	wh, err := reader.ReadFile(filepath.Join(out, "wh.csv"))
	require.NoError(t, err)
	require.Len(t, wh.Rows, 2)
	assert.Equal(t, "2021-03-01", wh.Rows[0].Data["publish_time"])
	assert.Equal(t, "2021-01-20T12:05:00-05:00", wh.Rows[1].Data["publish_time"])

	mfa, err := os.ReadFile(filepath.Join(out, "mfa.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(mfa), `"content":"问：关于……\n答：我们注意到……"`)
	assert.Contains(t, string(mfa), `"content":"答：没有"`)
}

func TestNormalize_DedupAndSort(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "state.csv", stateCSV)

	cfg := testConfig()
	cfg.Output.Dedup = true
	cfg.Output.Sort = config.SortDesc
	cfg.Output.Formats = []string{config.FormatCSV}

	out := t.TempDir()

	report, err := newPipeline(cfg).Normalize(context.Background(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CountByKind()[models.KindDuplicate], "dropped duplicates are still reported")

	data, err := os.ReadFile(filepath.Join(out, "state.csv"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.NoFileExists(t, filepath.Join(out, "state.jsonl"))
}

func TestNormalize_OutputFailure(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "state.csv", stateCSV)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := newPipeline(testConfig()).Normalize(context.Background(), dir, filepath.Join(blocker, "out"))
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestSortRecords(t *testing.T) {
	records := []models.Record{
		{PublishTime: "2021-03-02", Title: "b"},
		{PublishTime: "2021-03-01", Title: "a"},
		{PublishTime: "2021-03-02", Title: "c"},
	}

	sortRecords(records, config.SortAsc)
	assert.Equal(t, []string{"a", "b", "c"}, lo.Map(records, func(r models.Record, _ int) string { return r.Title }))

	sortRecords(records, config.SortDesc)
	assert.Equal(t, []string{"b", "c", "a"}, lo.Map(records, func(r models.Record, _ int) string { return r.Title }))

	sortRecords(records, config.SortFile)
	assert.Equal(t, "b", records[0].Title)
}
