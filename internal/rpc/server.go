package rpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/traffic-sign/internal/tensor"
)

// Scorer is the model a Server exposes.
type Scorer interface {
	InputShape() tensor.Shape
	NumLabels() int
	Score(ctx context.Context, in *tensor.Tensor) ([]float32, error)
}

// Server implements ScorerServer on top of a local Scorer.
type Server struct {
	scorer Scorer
	logger *zap.Logger
}

// NewServer wraps scorer.
func NewServer(scorer Scorer, logger *zap.Logger) *Server {
	return &Server{scorer: scorer, logger: logger.Named("rpc_server")}
}

// NewGRPCServer returns a grpc.Server with the Scorer service registered and
// every call logged.
func NewGRPCServer(scorer Scorer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewServer(scorer, logger)
	opts = append(opts, grpc.UnaryInterceptor(srv.logCalls))
	s := grpc.NewServer(opts...)
	RegisterScorerServer(s, srv)
	return s
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("rpc failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("rpc served", fields...)
	}
	return resp, err
}

// Describe reports the input shape and label count of the served model.
func (s *Server) Describe(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	shape := s.scorer.InputShape()
	dims := make([]interface{}, len(shape))
	for i, d := range shape {
		dims[i] = d
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"input_shape": dims,
		"num_labels":  s.scorer.NumLabels(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Score decodes the tensor, scores it and returns the logits.
func (s *Server) Score(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.ListValue, error) {
	data, err := decodeFloats(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	in, err := tensor.FromData(s.scorer.InputShape(), data)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	scores, err := s.scorer.Score(ctx, in)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	values := make([]*structpb.Value, len(scores))
	for i, v := range scores {
		values[i] = structpb.NewNumberValue(float64(v))
	}
	return &structpb.ListValue{Values: values}, nil
}
