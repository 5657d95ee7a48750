package classifier

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/traffic-sign/internal/rpc"
	"github.com/example/traffic-sign/internal/tensor"
)

// Remote scores tensors with a model served by another process.
type Remote struct {
	client *rpc.Client
}

// DialRemote connects to a Scorer service at addr.
func DialRemote(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Remote, error) {
	client, err := rpc.Dial(ctx, addr, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Remote{client: client}, nil
}

func (r *Remote) InputShape() tensor.Shape { return r.client.InputShape() }

func (r *Remote) NumLabels() int { return r.client.NumLabels() }

func (r *Remote) Score(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	if err := checkInput(ctx, r, in); err != nil {
		return nil, err
	}
	return r.client.Score(ctx, in)
}

func (r *Remote) Close() error { return r.client.Close() }
