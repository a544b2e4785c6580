// Package quiz exposes the assessment engines over gRPC as
// workprint.quiz.v1.QuizService. Requests and responses use protobuf
// well-known types so no generated code is needed.
package quiz

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "workprint.quiz.v1.QuizService"

const (
	nextBlockMethod = "/" + ServiceName + "/NextBlock"
	scoreMethod     = "/" + ServiceName + "/Score"
	outcomeMethod   = "/" + ServiceName + "/Outcome"
	ledgerMethod    = "/" + ServiceName + "/Ledger"
)

// QuizServer is the server API for QuizService.
type QuizServer interface {
	// NextBlock advances the session named by the request value.
	NextBlock(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Score classifies the "letters" field of the request.
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Outcome returns the recorded outcome for the session named by the
	// request value.
	Outcome(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Ledger returns recent outcomes and per-profile totals, honouring an
	// optional "limit" field.
	Ledger(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes QuizService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuizServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NextBlock", Handler: nextBlockHandler},
		{MethodName: "Score", Handler: scoreHandler},
		{MethodName: "Outcome", Handler: outcomeHandler},
		{MethodName: "Ledger", Handler: ledgerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "workprint/quiz/v1/quiz.proto",
}

// RegisterQuizServer registers srv on s.
func RegisterQuizServer(s grpc.ServiceRegistrar, srv QuizServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func nextBlockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServer).NextBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nextBlockMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServer).NextBlock(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: scoreMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func outcomeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServer).Outcome(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: outcomeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServer).Outcome(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func ledgerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuizServer).Ledger(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ledgerMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuizServer).Ledger(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
