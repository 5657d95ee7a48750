package classifier

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/traffic-sign/internal/tensor"
)

const (
	KindUntrained = "untrained"
	KindONNX      = "onnx"
	KindRemote    = "remote"
)

// Options selects and configures a classifier variant.
type Options struct {
	Kind string

	// Untrained
	InputWidth  int
	InputHeight int
	HiddenUnits int
	Seed        int64
	NumLabels   int

	// ONNX
	ONNX ONNXConfig

	// Remote
	RemoteAddr string
}

// Open builds the classifier described by opts.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Classifier, error) {
	switch opts.Kind {
	case KindUntrained, "":
		shape := tensor.ImageShape(opts.InputWidth, opts.InputHeight)
		c, err := NewUntrained(shape, opts.HiddenUnits, opts.NumLabels, opts.Seed)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindONNX:
		c, err := NewONNX(opts.ONNX)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindRemote:
		c, err := DialRemote(ctx, opts.RemoteAddr, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("classifier: unknown kind %q", opts.Kind)
	}
}

// Loader builds a classifier on first use and hands the same instance to
// every later caller. A failed build is not remembered, so the next call
// tries again.
type Loader struct {
	mu     sync.Mutex
	build  func(ctx context.Context) (Classifier, error)
	c      Classifier
	logger *zap.Logger
}

// NewLoader returns a Loader around build.
func NewLoader(build func(ctx context.Context) (Classifier, error), logger *zap.Logger) *Loader {
	return &Loader{build: build, logger: logger.Named("classifier_loader")}
}

// Static returns a Loader that always yields c.
func Static(c Classifier) *Loader {
	return &Loader{c: c, logger: zap.NewNop()}
}

// Get returns the shared classifier, building it if needed.
func (l *Loader) Get(ctx context.Context) (Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c != nil {
		return l.c, nil
	}
	c, err := l.build(ctx)
	if err != nil {
		l.logger.Error("classifier build failed", zap.Error(err))
		return nil, fmt.Errorf("load classifier: %w", err)
	}
	l.logger.Info("classifier ready",
		zap.Stringer("input_shape", c.InputShape()),
		zap.Int("num_labels", c.NumLabels()))
	l.c = c
	return c, nil
}

// Close releases the classifier if one was built.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		return nil
	}
	err := l.c.Close()
	l.c = nil
	return err
}
