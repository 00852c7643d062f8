package grpcserver

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"crossbook/adapter/message"
	"crossbook/service"
)

const (
	defaultBookLevels = 50
	maxBookLevels     = 1000
)

// Server adapts OrderService to gRPC. Order rejections are returned as
// error envelopes with an OK status, as on the other transports; only
// undecodable payloads fail the call.
type Server struct {
	svc *service.OrderService
	log *zap.SugaredLogger
}

func NewServer(svc *service.OrderService, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{svc: svc, log: log.With("component", "grpc")}
}

// NewGRPCServer returns a grpc.Server with the order service registered.
func NewGRPCServer(svc *service.OrderService, log *zap.SugaredLogger, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewServer(svc, log)
	opts = append(opts, grpc.ChainUnaryInterceptor(srv.logUnary))
	g := grpc.NewServer(opts...)
	RegisterOrderServiceServer(g, srv)
	return g
}

// -------------------- Commands --------------------

func (s *Server) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	return toStruct(s.svc.Submit(body))
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := defaultBookLevels
	if v, ok := req.GetFields()["limit"]; ok {
		n := v.GetNumberValue()
		if n < 0 || n > maxBookLevels || n != math.Trunc(n) {
			return nil, status.Errorf(codes.InvalidArgument, "limit must be an integer between 0 and %d", maxBookLevels)
		}
		limit = int(n)
	}
	return toStruct(message.Book(s.svc.Instrument(), s.svc.Depth(limit)))
}

// -------------------- Helpers --------------------

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debugw("call",
		"method", info.FullMethod,
		"took", time.Since(start),
		"code", status.Code(err).String(),
	)
	return resp, err
}
