// Package log provides structured slog logging for grove and defines the
// standard attribute keys used across the library.
//
// Using these keys consistently enables log filtering by model,
// operation, and data shape. Keys follow a hierarchical naming
// convention (e.g. "model.name", "data.samples").
package log

// Model and operation context.
const (
	// ModelNameKey identifies the type of model emitting the log.
	// Examples: "BaggingClassifier", "RandomForestClassifier"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "predict_proba", "score", "oob_score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package performs the operation.
	// Examples: "ensemble", "tree", "linear_model", "preprocessing"
	ComponentKey = "ml.component"
)

// Data shape and characteristics.
const (
	// SamplesKey indicates the number of samples (rows) being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct class labels.
	ClassesKey = "data.classes"
)

// Ensemble context.
const (
	// EstimatorsKey indicates how many base estimators an ensemble holds.
	EstimatorsKey = "ensemble.estimators"

	// MaxSamplesKey indicates the bootstrap sample size per estimator.
	MaxSamplesKey = "ensemble.max_samples"

	// BootstrapKey indicates whether sampling is with replacement.
	BootstrapKey = "ensemble.bootstrap"

	// OOBScoreKey records the computed out-of-bag score.
	OOBScoreKey = "ensemble.oob_score"

	// OOBSkippedKey records how many rows had no out-of-bag estimator.
	OOBSkippedKey = "ensemble.oob_skipped"

	// DroppedKey records how many estimators failed under the lenient
	// training policy.
	DroppedKey = "ensemble.dropped"
)

// Performance metrics.
const (
	// DurationMsKey records the execution time of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy, range [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"

	// MSEKey records mean squared error for regression.
	MSEKey = "metrics.mse"
)

// Configuration.
const (
	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values for the OperationKey.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationPredictProba = "predict_proba"
	OperationScore        = "score"
	OperationOOBScore     = "oob_score"
	OperationTransform    = "transform"
)
