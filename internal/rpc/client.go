package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/traffic-sign/internal/logging"
	"github.com/example/traffic-sign/internal/tensor"
)

// Client scores tensors on a remote Scorer service.
type Client struct {
	conn      *grpc.ClientConn
	shape     tensor.Shape
	numLabels int
	logger    *zap.Logger
}

// Dial connects to addr and asks the server which input shape and label count
// it serves.
func Dial(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("rpc.dial_scorer", "", err)
		logger.Error("failed to dial scorer", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}

	c := &Client{conn: conn, logger: logger.Named("rpc_client")}
	if err := c.describe(dialCtx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) describe(ctx context.Context) error {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, describeMethod, &emptypb.Empty{}, out); err != nil {
		wrapped := logging.NewOperationError("rpc.describe", "", err)
		c.logger.Error("scorer describe failed", zap.Error(wrapped))
		return wrapped
	}

	fields := out.GetFields()
	dims := fields["input_shape"].GetListValue().GetValues()
	if len(dims) == 0 {
		return errors.New("rpc: scorer did not report an input shape")
	}
	c.shape = make(tensor.Shape, len(dims))
	for i, d := range dims {
		c.shape[i] = int(d.GetNumberValue())
	}
	c.numLabels = int(fields["num_labels"].GetNumberValue())
	if c.numLabels <= 0 {
		return fmt.Errorf("rpc: scorer reported %d labels", c.numLabels)
	}
	return nil
}

func (c *Client) InputShape() tensor.Shape { return c.shape }

func (c *Client) NumLabels() int { return c.numLabels }

// Score sends the tensor to the server and returns its logits.
func (c *Client) Score(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	if !c.shape.Equal(in.Shape) {
		return nil, fmt.Errorf("rpc: scorer expects %s, got %s", c.shape, in.Shape)
	}

	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, scoreMethod, wrapperspb.Bytes(encodeFloats(in.Data)), out); err != nil {
		wrapped := logging.NewOperationError("rpc.score", "", err)
		c.logger.Error("scorer call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	values := out.GetValues()
	if len(values) != c.numLabels {
		return nil, fmt.Errorf("rpc: scorer returned %d scores for %d labels", len(values), c.numLabels)
	}
	scores := make([]float32, len(values))
	for i, v := range values {
		scores[i] = float32(v.GetNumberValue())
	}
	return scores, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
