package grpcserver

import (
	"context"
	"errors"

	"hkl-restful/interceptors"
	"hkl-restful/services"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CountRecordsMethod is the full method name of the record count RPC.
const CountRecordsMethod = "/hkl.records.v1.Records/Count"

// RecordsServer answers record queries for authenticated callers. The caller
// is the actor placed in the context by the auth interceptors, so the same
// role and city scoping as the HTTP list applies.
type RecordsServer struct {
	signups services.SignupService
}

func NewRecordsServer(signups services.SignupService) *RecordsServer {
	return &RecordsServer{signups: signups}
}

// Count returns the number of records visible to the caller. The request
// value is the optional city filter.
func (s *RecordsServer) Count(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	actor, ok := interceptors.ActorFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authorization token is not provided")
	}
	records, err := s.signups.List(ctx, actor, req.GetValue())
	if err != nil {
		return nil, statusFromError(err)
	}
	return wrapperspb.Int64(int64(len(records))), nil
}

type recordsService interface {
	Count(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

func countHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(recordsService).Count(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CountRecordsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(recordsService).Count(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var recordsServiceDesc = grpc.ServiceDesc{
	ServiceName: "hkl.records.v1.Records",
	HandlerType: (*recordsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Count", Handler: countHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hkl/records/v1/records.proto",
}

// RegisterRecordsServer adds the records service to s.
func RegisterRecordsServer(s grpc.ServiceRegistrar, srv *RecordsServer) {
	s.RegisterService(&recordsServiceDesc, srv)
}

func statusFromError(err error) error {
	var code codes.Code
	switch services.KindOf(err) {
	case services.KindValidation:
		code = codes.InvalidArgument
	case services.KindAuthentication:
		code = codes.Unauthenticated
	case services.KindAuthorization:
		code = codes.PermissionDenied
	case services.KindNotFound:
		code = codes.NotFound
	case services.KindConflict:
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, "server error")
	}
	var se *services.Error
	if errors.As(err, &se) {
		return status.Error(code, se.Message)
	}
	return status.Error(code, err.Error())
}
