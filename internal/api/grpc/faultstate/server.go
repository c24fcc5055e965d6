package faultstate

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	"github.com/LeoXDXp/ACS/internal/logger"
	pb "github.com/LeoXDXp/ACS/internal/pb/v1"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Record(ctx context.Context, source string, state *alarm.FaultState) (*alarm.Record, error)
	Snapshot(ctx context.Context) []*alarm.Record
}

// Server implements the FaultStateService gRPC API.
type Server struct {
	// service stores and returns collected fault states.
	service Service
}

var _ pb.FaultStateServiceServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Push records one fault state.
func (s *Server) Push(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	source, state, err := pb.DecodeFaultState(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if _, err := s.service.Record(ctx, source, state); err != nil {
		logger.ErrorKV(ctx, "Failed to record fault state", "triplet", state.Triplet(), "error", err)

		return nil, status.Error(codes.Internal, "unable to record fault state")
	}

	return new(emptypb.Empty), nil
}

// List returns the latest record of every fault triplet.
func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	list, err := pb.EncodeRecords(s.service.Snapshot(ctx))
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode fault states")
	}

	return list, nil
}
