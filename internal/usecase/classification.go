package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/traffic-sign/internal/classifier"
	"github.com/example/traffic-sign/internal/imageprocessor"
	"github.com/example/traffic-sign/internal/labels"
	"github.com/example/traffic-sign/internal/logging"
	"github.com/example/traffic-sign/internal/metrics"
	"github.com/example/traffic-sign/internal/result"
	"github.com/example/traffic-sign/internal/session"
	"github.com/example/traffic-sign/internal/tensor"
)

// ErrSessionBusy is returned when the session already has a classification in flight.
var ErrSessionBusy = errors.New("a classification is already running for this session")

// Recorder receives pipeline measurements.
type Recorder interface {
	ObserveOutcome(outcome string)
	ObserveStage(stage string, elapsed time.Duration)
	ObserveConfidence(p float64)
}

// Outcome is a finished classification.
type Outcome struct {
	RequestID string               `json:"request_id"`
	Format    string               `json:"format"`
	Elapsed   time.Duration        `json:"elapsed"`
	Result    *result.RankedResult `json:"result"`
}

// PipelineConfig holds the fixed pipeline parameters.
type PipelineConfig struct {
	TargetSize imageprocessor.Size
	Threshold  float64
	// MaxPixels caps decoded image dimensions; zero means the package default.
	MaxPixels int

	// PipelineTTL bounds how long a crashed request can keep its session busy.
	PipelineTTL time.Duration
}

// ClassificationUseCase runs decode, normalize, score and format for one
// uploaded image.
type ClassificationUseCase struct {
	retrier
	loader  *classifier.Loader
	labels  *labels.Set
	cfg     PipelineConfig
	store   session.Store
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewClassificationUseCase constructs the use case. A nil recorder disables metrics.
func NewClassificationUseCase(loader *classifier.Loader, set *labels.Set, cfg PipelineConfig, store session.Store, recorder Recorder, logger *zap.Logger) *ClassificationUseCase {
	if cfg.PipelineTTL <= 0 {
		cfg.PipelineTTL = time.Minute
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = imageprocessor.DefaultMaxPixels
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	named := logger.Named("classification_usecase")
	return &ClassificationUseCase{
		retrier: newRetrier(named),
		loader:  loader,
		labels:  set,
		cfg:     cfg,
		store:   store,
		metrics: recorder,
		logger:  named,
		now:     time.Now,
	}
}

// Labels is the label set results are reported against.
func (uc *ClassificationUseCase) Labels() *labels.Set { return uc.labels }

// Threshold is the display threshold applied to results.
func (uc *ClassificationUseCase) Threshold() float64 { return uc.cfg.Threshold }

// Classify classifies one encoded image for the given session.
func (uc *ClassificationUseCase) Classify(ctx context.Context, sessionID string, imageBytes []byte) (*Outcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID)
	start := uc.now()

	var acquired bool
	if err := uc.withRetry(ctx, requestID, "session.acquire_pipeline", func() error {
		ok, err := uc.store.AcquirePipeline(ctx, sessionID, requestID, uc.cfg.PipelineTTL)
		acquired = ok
		return err
	}); err != nil {
		uc.metrics.ObserveOutcome(metrics.OutcomeError)
		return nil, err
	}
	if !acquired {
		uc.metrics.ObserveOutcome(metrics.OutcomeBusy)
		opLogger.Info("session busy", zap.String("session_id", sessionID))
		return nil, logging.NewOperationError("usecase.classify", requestID, ErrSessionBusy)
	}
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := uc.withRetry(releaseCtx, requestID, "session.release_pipeline", func() error {
			return uc.store.ReleasePipeline(releaseCtx, sessionID, requestID)
		}); err != nil {
			opLogger.Warn("failed to release pipeline guard", zap.Error(err))
		}
	}()

	ranked, format, err := uc.run(ctx, requestID, imageBytes)
	outcome := outcomeOf(err)
	uc.metrics.ObserveOutcome(outcome)
	if err != nil {
		if outcome == metrics.OutcomeShapeMismatch || outcome == metrics.OutcomeLabelMismatch || outcome == metrics.OutcomeError {
			opLogger.Error("classification failed", zap.Error(err))
		} else {
			opLogger.Info("image rejected", zap.Error(err))
		}
		return nil, err
	}

	elapsed := uc.now().Sub(start)
	uc.metrics.ObserveConfidence(ranked.TopConfidence)
	opLogger.Info("classification complete",
		zap.String("top_label", ranked.TopLabel),
		zap.Float64("top_confidence", ranked.TopConfidence),
		zap.Int("entries", len(ranked.Entries)),
		zap.Duration("elapsed", elapsed))

	return &Outcome{RequestID: requestID, Format: format, Elapsed: elapsed, Result: ranked}, nil
}

func (uc *ClassificationUseCase) run(ctx context.Context, requestID string, imageBytes []byte) (*result.RankedResult, string, error) {
	stage := uc.now()
	img, format, err := imageprocessor.Decode(imageBytes, uc.cfg.MaxPixels)
	uc.observeStage("decode", &stage)
	if err != nil {
		return nil, "", logging.NewOperationError("usecase.decode", requestID, err)
	}

	in, err := imageprocessor.Normalize(img, uc.cfg.TargetSize)
	uc.observeStage("normalize", &stage)
	if err != nil {
		return nil, format, logging.NewOperationError("usecase.normalize", requestID, err)
	}

	scores, err := uc.score(ctx, in)
	uc.observeStage("score", &stage)
	if err != nil {
		return nil, format, logging.NewOperationError("usecase.score", requestID, err)
	}

	ranked, err := result.Format(scores, uc.labels, uc.cfg.Threshold)
	uc.observeStage("format", &stage)
	if err != nil {
		return nil, format, logging.NewOperationError("usecase.format", requestID, err)
	}
	return ranked, format, nil
}

// score checks the tensor against the classifier's input shape before
// invoking it.
func (uc *ClassificationUseCase) score(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	c, err := uc.loader.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := classifier.CheckShape(c.InputShape(), in.Shape); err != nil {
		return nil, err
	}
	return c.Score(ctx, in)
}

func (uc *ClassificationUseCase) observeStage(name string, since *time.Time) {
	now := uc.now()
	uc.metrics.ObserveStage(name, now.Sub(*since))
	*since = now
}

// SelfCheck runs a blank image of the target size through the classifier
// and formatter, surfacing shape and label set mismatches before any
// request is served.
func (uc *ClassificationUseCase) SelfCheck(ctx context.Context) error {
	c, err := uc.loader.Get(ctx)
	if err != nil {
		return logging.NewOperationError("usecase.self_check", "", err)
	}
	if c.NumLabels() != uc.labels.Len() {
		return logging.NewOperationError("usecase.self_check", "",
			fmt.Errorf("%w: classifier has %d outputs, label set %q has %d",
				labels.ErrLabelIndexOutOfRange, c.NumLabels(), uc.labels.Name(), uc.labels.Len()))
	}
	in := tensor.New(uc.cfg.TargetSize.Shape())
	if err := classifier.CheckShape(c.InputShape(), in.Shape); err != nil {
		return logging.NewOperationError("usecase.self_check", "",
			fmt.Errorf("normalizer size %s: %w", uc.cfg.TargetSize, err))
	}
	scores, err := c.Score(ctx, in)
	if err != nil {
		return logging.NewOperationError("usecase.self_check", "", err)
	}
	if _, err := result.Format(scores, uc.labels, uc.cfg.Threshold); err != nil {
		return logging.NewOperationError("usecase.self_check", "", err)
	}
	uc.logger.Info("self check passed",
		zap.Stringer("input_shape", c.InputShape()),
		zap.String("labels", uc.labels.Name()),
		zap.Int("num_labels", uc.labels.Len()))
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, imageprocessor.ErrUnsupportedFormat):
		return metrics.OutcomeUnsupportedFormat
	case errors.Is(err, imageprocessor.ErrInvalidImage):
		return metrics.OutcomeInvalidImage
	case errors.Is(err, imageprocessor.ErrImageTooLarge):
		return metrics.OutcomeTooLarge
	case errors.Is(err, classifier.ErrShapeMismatch):
		return metrics.OutcomeShapeMismatch
	case errors.Is(err, labels.ErrLabelIndexOutOfRange):
		return metrics.OutcomeLabelMismatch
	default:
		return metrics.OutcomeError
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(string)              {}
func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) ObserveConfidence(float64)          {}
