package log

// Model and operation context.
const (
	// ModelNameKey identifies the kind of model, e.g. "EBMRegressor".
	ModelNameKey = "model.name"

	// ModelIDKey is the uuid of a fitted or merged model.
	ModelIDKey = "model.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "bin", "boost", "interactions", "merge", "predict"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the boosting stage: "mains" or "pairs".
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
	TermsKey    = "data.terms"
	FeatureKey  = "data.feature"
)

// Training progress.
const (
	// BagKey is the outer bag index.
	BagKey = "training.bag"

	// IterationKey records the boosting round.
	IterationKey = "training.iteration"

	// TermKey is the term index within the current stage.
	TermKey = "training.term"

	// MetricKey is the validation metric reported by the booster.
	MetricKey = "training.metric"

	// BreakpointKey is the round at which a bag stopped.
	BreakpointKey = "training.breakpoint"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Configuration and privacy.
const (
	RandomSeedKey   = "config.random_seed"
	LearningRateKey = "hyperparams.learning_rate"
	EpsilonKey      = "privacy.epsilon"
	DeltaKey        = "privacy.delta"
	NoiseScaleKey   = "privacy.noise_scale"
	CompositionKey  = "privacy.composition"
)

// Error context.
const (
	ErrorKey      = "error"
	StacktraceKey = "error.stacktrace"
	WarningKey    = "warning"
)
