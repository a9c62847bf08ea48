package emitter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpusnorm/internal/config"
	"corpusnorm/internal/models"
	"corpusnorm/internal/normalizer"
	"corpusnorm/internal/reader"
)

var allFormats = []reader.Format{reader.FormatCSV, reader.FormatJSONL, reader.FormatXLSX}

func briefing() models.Record {
	return models.Record{
		PublishTime: "2021-03-01",
		Type:        "press briefing",
		Title:       "Daily Briefing",
		Content:     "Q: ... A: ...",
		SourceURL:   "https://example.gov/1",
	}
}

func awkwardRecords() []models.Record {
	return []models.Record{
		briefing(),
		{
			PublishTime: "2021-01-20T12:05:00-05:00",
			Type:        "remarks",
			Title:       `Quote "this", comma, <b>bold</b> & more`,
			Content:     "line one\nline two\n\n  indented\ttab, \"quoted\"",
			SourceURL:   "https://example.gov/2?a=1&b=2",
		},
		{
			PublishTime: "2024-01-02",
			Type:        "regular press conference",
			Title:       "2024年1月2日外交部发言人毛宁主持例行记者会",
			Content:     "",
			SourceURL:   "https://www.mfa.gov.cn/web/fyrbt/202401/t20240102.shtml",
		},
	}
}

// reparse reads emitted bytes back through the reader and the identity normalizer.
func reparse(t *testing.T, data []byte, format reader.Format) []models.Record {
	t.Helper()

	file, err := reader.Read(bytes.NewReader(data), format, "out")
	require.NoError(t, err)

	p, err := normalizer.NewProcessor(config.IdentitySource("out"))
	require.NoError(t, err)

	records := make([]models.Record, 0, len(file.Rows))

	for _, row := range file.Rows {
		rec, err := p.Process(row)
		require.NoError(t, err, "row %d", row.Line)

		records = append(records, rec)
	}

	return records
}

func TestEmit_RoundTrip(t *testing.T) {
	e := New(Options{})

	for _, format := range allFormats {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer

			require.NoError(t, e.Emit(&buf, format, awkwardRecords()))
			assert.Equal(t, awkwardRecords(), reparse(t, buf.Bytes(), format))
		})
	}
}

func TestEmit_RoundTrip_ControlCharacters(t *testing.T) {
	p, err := normalizer.NewProcessor(config.IdentitySource("ctrl"))
	require.NoError(t, err)

	var records []models.Record

	for _, content := range []string{"line1\x0bline2", "ctrl\x01char"} {
		raw := models.Raw{}
		for f, v := range briefing().Values() {
			raw[models.Fields[f]] = v
		}

		raw["content"] = content

		rec, err := p.Process(models.Row{Data: raw})
		require.NoError(t, err)

		records = append(records, rec)
	}

	assert.Equal(t, "line1line2", records[0].Content)
	assert.Equal(t, "ctrlchar", records[1].Content)

	e := New(Options{})

	for _, format := range allFormats {
		var buf bytes.Buffer

		require.NoError(t, e.Emit(&buf, format, records))
		assert.Equal(t, records, reparse(t, buf.Bytes(), format), format)
	}
}

func TestEmit_Deterministic(t *testing.T) {
	e := New(Options{CSVBOM: true})

	for _, format := range []reader.Format{reader.FormatCSV, reader.FormatJSONL} {
		var a, b bytes.Buffer

		require.NoError(t, e.Emit(&a, format, awkwardRecords()))
		require.NoError(t, e.Emit(&b, format, awkwardRecords()))
		assert.Equal(t, a.Bytes(), b.Bytes(), format)
	}
}

func TestEmit_ZeroRecords(t *testing.T) {
	e := New(Options{})

	var csvBuf, jsonlBuf, xlsxBuf bytes.Buffer

	require.NoError(t, e.Emit(&csvBuf, reader.FormatCSV, nil))
	assert.Equal(t, "publish_time,type,title,content,source_url\n", csvBuf.String())

	require.NoError(t, e.Emit(&jsonlBuf, reader.FormatJSONL, nil))
	assert.Empty(t, jsonlBuf.Bytes())

	require.NoError(t, e.Emit(&xlsxBuf, reader.FormatXLSX, nil))

	file, err := reader.Read(bytes.NewReader(xlsxBuf.Bytes()), reader.FormatXLSX, "empty.xlsx")
	require.NoError(t, err)
	assert.Equal(t, models.Fields, file.Header)
	assert.Empty(t, file.Rows)

	for _, format := range allFormats {
		var buf bytes.Buffer

		require.NoError(t, e.Emit(&buf, format, nil))
		assert.Empty(t, reparse(t, buf.Bytes(), format))
	}
}

func TestEmit_CSV(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, New(Options{CSVBOM: true}).Emit(&buf, reader.FormatCSV, []models.Record{briefing()}))

	assert.Equal(t,
		"\uFEFFpublish_time,type,title,content,source_url\n"+
			"2021-03-01,press briefing,Daily Briefing,Q: ... A: ...,https://example.gov/1\n",
		buf.String())
}

func TestEmit_JSONL(t *testing.T) {
	rec := briefing()
	rec.Title = "<Daily> & Briefing"

	var buf bytes.Buffer

	require.NoError(t, New(Options{}).Emit(&buf, reader.FormatJSONL, []models.Record{rec, briefing()}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`{"publish_time":"2021-03-01","type":"press briefing","title":"<Daily> & Briefing","content":"Q: ... A: ...","source_url":"https://example.gov/1"}`,
		lines[0])
}

func TestEmit_XLSXSplitsLongContent(t *testing.T) {
	long := briefing()
	long.Content = strings.Repeat("答", 25) + strings.Repeat("a", 10)

	records := []models.Record{briefing(), long}

	var buf bytes.Buffer

	require.NoError(t, New(Options{SplitSize: 10}).Emit(&buf, reader.FormatXLSX, records))

	file, err := reader.Read(bytes.NewReader(buf.Bytes()), reader.FormatXLSX, "long.xlsx")
	require.NoError(t, err)
	assert.Equal(t, models.Fields, file.Header, "part columns fold back into content")

	assert.Equal(t, records, reparse(t, buf.Bytes(), reader.FormatXLSX))
}

func TestEmit_XLSXSplitsEveryField(t *testing.T) {
	long := briefing()
	long.Title = strings.Repeat("题", 23)
	long.Content = strings.Repeat("b", 12)

	records := []models.Record{long, briefing()}

	var buf bytes.Buffer

	require.NoError(t, New(Options{SplitSize: 10}).Emit(&buf, reader.FormatXLSX, records))
	assert.Equal(t, records, reparse(t, buf.Bytes(), reader.FormatXLSX))
}

func TestEmit_UnsupportedFormat(t *testing.T) {
	err := New(Options{}).Emit(&bytes.Buffer{}, reader.Format("parquet"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path, err := New(Options{}).WriteFile(dir, "state", reader.FormatJSONL, []models.Record{briefing()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state.jsonl"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_url":"https://example.gov/1"`)

	_, err = New(Options{}).WriteFile(filepath.Join(dir, "missing"), "state", reader.FormatCSV, nil)
	assert.ErrorIs(t, err, models.ErrIO)
}
