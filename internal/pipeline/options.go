package pipeline

// OrchestratorOption overrides one pluggable collaborator of the
// orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithPreprocessor(p Preprocessor) OrchestratorOption {
	return func(o *Orchestrator) { o.pre = p }
}

func WithFieldExtractor(e FieldExtractor) OrchestratorOption {
	return func(o *Orchestrator) { o.extractor = e }
}

func WithConfidenceScorer(s ConfidenceScorer) OrchestratorOption {
	return func(o *Orchestrator) { o.scorer = s }
}

func WithResultValidator(v ResultValidator) OrchestratorOption {
	return func(o *Orchestrator) { o.validator = v }
}
