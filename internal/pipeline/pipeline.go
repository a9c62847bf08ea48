// Package pipeline runs discovered sources through reading, normalization,
// validation and reporting, and writes the canonical outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"corpusnorm/internal/config"
	"corpusnorm/internal/emitter"
	"corpusnorm/internal/logger"
	"corpusnorm/internal/metrics"
	"corpusnorm/internal/models"
	"corpusnorm/internal/normalizer"
	"corpusnorm/internal/reader"
	"corpusnorm/internal/reporter"
	"corpusnorm/pkg/metadata"
)

// ReportFileName is the JSON report written to the output directory.
const ReportFileName = "report.json"

// outputFormats fixes the emission order regardless of configuration order.
var outputFormats = []string{config.FormatCSV, config.FormatJSONL, config.FormatXLSX}

// Result is the outcome of one source. Each worker owns exactly one Result.
type Result struct {
	Source   string
	Records  []models.Record
	Stats    reporter.SourceStats
	Findings []models.Finding
	// Aborted is set when the source mapping itself is unusable; nothing is emitted.
	Aborted bool
}

// Pipeline holds the collaborators of one run.
type Pipeline struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	emitter *emitter.Emitter
	runID   string
}

// New creates a pipeline with a fresh run id.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *Pipeline {
	runID := uuid.NewString()

	return &Pipeline{
		cfg:     cfg,
		log:     log.With("run_id", runID),
		metrics: m,
		emitter: emitter.New(emitter.Options{CSVBOM: cfg.Output.CSVBOM}),
		runID:   runID,
	}
}

// Validate processes every source under dir and returns the report without
// writing anything.
func (p *Pipeline) Validate(ctx context.Context, dir string) (*reporter.Report, error) {
	start := time.Now()

	_, report, err := p.run(ctx, dir)
	if err != nil {
		return nil, err
	}

	return report, p.finish(start)
}

// Normalize processes every source under dir and writes one file per source and
// format, report.json and manifest.json into outDir. Output I/O failures are
// returned; input problems are findings in the report.
func (p *Pipeline) Normalize(ctx context.Context, dir, outDir string) (*reporter.Report, error) {
	start := time.Now()

	results, report, err := p.run(ctx, dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return report, &models.IOFailure{Op: "mkdir", Path: outDir, Err: err}
	}

	manifest := metadata.New(p.runID)

	for _, res := range results {
		if res.Aborted {
			continue
		}

		for _, format := range outputFormats {
			if !p.cfg.WantsFormat(format) {
				continue
			}

			path, err := p.emitter.WriteFile(outDir, res.Source, reader.Format(format), res.Records)
			if err != nil {
				return report, err
			}

			name := filepath.Base(path)
			if err := manifest.Sign(outDir, name, res.Source, format, len(res.Records)); err != nil {
				return report, err
			}

			p.log.Debug("Wrote output", "source", res.Source, "file", name, "records", len(res.Records))
		}
	}

	if err := report.Save(filepath.Join(outDir, ReportFileName)); err != nil {
		return report, err
	}

	if err := manifest.Sign(outDir, ReportFileName, "", "json", len(report.Findings)); err != nil {
		return report, err
	}

	if err := manifest.Save(outDir, !report.HasFatal()); err != nil {
		return report, err
	}

	p.log.Info("Output written", "dir", outDir, "files", len(manifest.Files))

	return report, p.finish(start)
}

func (p *Pipeline) finish(start time.Time) error {
	p.metrics.ObserveRun(time.Since(start))

	if p.cfg.Metrics.Textfile == "" {
		return nil
	}

	return p.metrics.WriteTextfile(p.cfg.Metrics.Textfile)
}

// run discovers sources and processes them in parallel workers. Results are
// joined in source order once every worker is done.
func (p *Pipeline) run(ctx context.Context, dir string) ([]Result, *reporter.Report, error) {
	sources, err := Discover(dir, p.cfg)
	if err != nil {
		return nil, nil, err
	}

	p.log.Info("Discovered sources", "dir", dir, "sources", len(sources),
		"files", lo.SumBy(sources, func(s Source) int { return len(s.Files) }))

	results := make([]Result, len(sources))

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, max(p.cfg.Processing.Workers, 1))
	)

	for i, src := range sources {
		wg.Add(1)
		go func(index int, s Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[index] = p.processSource(ctx, dir, s)
		}(i, src)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("run cancelled: %w", err)
	}

	report := reporter.New(p.runID)

	for _, res := range results {
		report.Add(res.Stats, res.Findings...)

		for _, f := range res.Findings {
			p.metrics.Finding(f)
		}
	}

	return results, report, nil
}

func (p *Pipeline) processSource(ctx context.Context, dir string, src Source) Result {
	name := src.Name()
	log := p.log.With("source", name)

	res := Result{
		Source: name,
		Stats:  reporter.SourceStats{Source: name, Files: len(src.Files)},
	}

	proc, err := normalizer.NewProcessor(src.Config)
	if err != nil {
		log.Error("Source mapping is unusable", "error", err)

		res.Aborted = true
		res.Stats.Failed = true
		res.Findings = append(res.Findings, mappingFindings(name, "", err)...)

		return res
	}

	tracker := reporter.NewDuplicateTracker(name)

	for _, rel := range src.Files {
		if ctx.Err() != nil {
			return res
		}

		p.processFile(proc, tracker, log, filepath.Join(dir, filepath.FromSlash(rel)), rel, &res)
	}

	gaps, coverage := reporter.FindGaps(name, res.Records, p.cfg.GapThreshold())
	res.Findings = append(res.Findings, gaps...)
	res.Stats.Gaps = len(gaps)
	res.Stats.SetCoverage(coverage)

	sortRecords(res.Records, p.cfg.Output.Sort)

	log.Info("Source processed",
		"files", res.Stats.Files,
		"read", res.Stats.Read,
		"accepted", res.Stats.Accepted,
		"skipped", res.Stats.Skipped,
		"duplicates", res.Stats.Duplicates,
		"unique_urls", tracker.Unique(),
		"gaps", res.Stats.Gaps)

	return res
}

func (p *Pipeline) processFile(
	proc *normalizer.Processor,
	tracker *reporter.DuplicateTracker,
	log *logger.Logger,
	path, rel string,
	res *Result,
) {
	name := res.Source

	file, err := reader.ReadFile(path)
	if err != nil {
		log.Error("Failed to read file", "file", rel, "error", err)

		p.metrics.FileFailed(name)
		res.Stats.Failed = true
		res.Findings = append(res.Findings, models.Finding{
			Kind:     models.KindIOFailure,
			Severity: models.SeverityFatal,
			Source:   name,
			File:     rel,
			Message:  err.Error(),
		})

		return
	}

	if err := proc.Transformer().CheckHeader(rel, file.Header); err != nil {
		log.Error("File header cannot feed the mapping", "file", rel, "error", err)

		p.metrics.FileFailed(name)
		res.Stats.Failed = true
		res.Findings = append(res.Findings, mappingFindings(name, rel, err)...)

		return
	}

	severity := models.SeverityWarning
	if p.cfg.Features.StrictValidation {
		severity = models.SeverityFatal
	}

	for _, row := range file.Rows {
		res.Stats.Read++
		p.metrics.RecordRead(name)

		rec, err := proc.Process(row)

		var sv *models.SchemaViolation
		if errors.As(err, &sv) {
			log.Debug("Record rejected", "file", rel, "line", row.Line, "error", err)

			res.Stats.Skipped++
			p.metrics.RecordSkipped(name, models.KindSchemaViolation)
			res.Findings = append(res.Findings, models.Finding{
				Kind:       models.KindSchemaViolation,
				Severity:   severity,
				Source:     name,
				File:       rel,
				Line:       row.Line,
				Field:      firstField(sv),
				Message:    sv.Error(),
				Violations: sv.Violations,
			})

			continue
		}

		res.Stats.Accepted++
		p.metrics.RecordAccepted(name)

		if dup, ok := tracker.Observe(rec, rel, row.Line); ok {
			res.Stats.Duplicates++
			res.Findings = append(res.Findings, dup)

			if p.cfg.Output.Dedup {
				p.metrics.RecordSkipped(name, models.KindDuplicate)
				continue
			}
		}

		res.Records = append(res.Records, rec)
	}
}

// mappingFindings turns a (possibly joined) mapping error into one fatal finding per field.
func mappingFindings(source, file string, err error) []models.Finding {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	findings := make([]models.Finding, 0, len(errs))

	for _, e := range errs {
		f := models.Finding{
			Kind:     models.KindMappingError,
			Severity: models.SeverityFatal,
			Source:   source,
			File:     file,
			Message:  e.Error(),
		}

		var me *models.MappingError
		if errors.As(e, &me) {
			f.Field = me.Field
		}

		findings = append(findings, f)
	}

	return findings
}

func firstField(sv *models.SchemaViolation) string {
	if len(sv.Violations) == 0 {
		return ""
	}

	return sv.Violations[0].Field
}

// sortRecords orders records by publish time, keeping file order among equal
// instants. config.SortFile leaves them untouched.
func sortRecords(records []models.Record, order string) {
	if order != config.SortAsc && order != config.SortDesc {
		return
	}

	instant := func(r models.Record) time.Time {
		t, _ := normalizer.ParseDate(r.PublishTime, "")
		return t
	}

	slices.SortStableFunc(records, func(a, b models.Record) int {
		c := instant(a).Compare(instant(b))
		if order == config.SortDesc {
			return -c
		}

		return c
	})
}
