package normalizer

import (
	"corpusnorm/internal/config"
	"corpusnorm/internal/models"
)

// Processor runs one source's rows through the transformer and the validator.
type Processor struct {
	validator   *Validator
	transformer *Transformer
}

// NewProcessor creates a processor for a source. The error is a *models.MappingError
// (possibly several joined) when the mapping is incomplete.
func NewProcessor(src config.SourceConfig) (*Processor, error) {
	transformer, err := NewTransformer(src)
	if err != nil {
		return nil, err
	}

	return &Processor{
		validator:   NewValidator(),
		transformer: transformer,
	}, nil
}

// Transformer exposes the source mapping, e.g. for header checks.
func (p *Processor) Transformer() *Transformer {
	return p.transformer
}

// Process transforms and validates one row.
func (p *Processor) Process(row models.Row) (models.Record, error) {
	source := p.transformer.Source()

	if row.Err != nil {
		return models.Record{}, &models.SchemaViolation{
			Source: source,
			Violations: []models.Violation{{
				Rule:    models.RuleUndecodable,
				Message: row.Err.Error(),
			}},
		}
	}

	return p.validator.Validate(source, p.transformer.Transform(row.Data))
}
