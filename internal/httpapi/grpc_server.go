package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
)

const (
	abilityServiceName = "ghg.v1.AbilityService"
	checkMethod        = "/" + abilityServiceName + "/Check"
)

// AbilityServer answers authorization queries for the authenticated caller.
// The request is a Struct with the same keys as POST /v1/abilities/check.
type AbilityServer interface {
	Check(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

var abilityServiceDesc = grpc.ServiceDesc{
	ServiceName: abilityServiceName,
	HandlerType: (*AbilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ghg/v1/ability.proto",
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AbilityServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AbilityServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer implements AbilityService.
type GRPCServer struct {
	auth      *auth.Service
	readiness readinessChecker
	health    *health.Server
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(authSvc *auth.Service, r readinessChecker) *GRPCServer {
	return &GRPCServer{auth: authSvc, readiness: r, health: health.NewServer()}
}

// Register builds a grpc.Server exposing AbilityService and grpc.health.v1.
func (s *GRPCServer) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.authInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&abilityServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.RefreshHealth(context.Background())
	return srv
}

// RefreshHealth reflects the readiness probe in the health service.
func (s *GRPCServer) RefreshHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		obs.SetReady(false)
	} else {
		obs.SetReady(true)
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(abilityServiceName, st)
}

// Check evaluates the query against the caller's ability.
func (s *GRPCServer) Check(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	sess, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	var q checkRequest
	fields := req.GetFields()
	q.Action = fields["action"].GetStringValue()
	q.Subject = fields["subject"].GetStringValue()
	q.Field = fields["field"].GetStringValue()
	if inst, ok := fields["instance"]; ok {
		raw, err := json.Marshal(inst.AsInterface())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "instance: %v", err)
		}
		q.Instance = raw
	}
	if q.Action == "" || q.Subject == "" {
		return nil, status.Error(codes.InvalidArgument, "action and subject are required")
	}
	resp, err := check(sess.Ability, q)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, "check failed")
	}
	return wrapperspb.Bool(resp.Allowed), nil
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
		return handler(ctx, req)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	token, err := extractBearerToken(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	sess, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return nil, status.Error(codes.Internal, "authentication error")
	}
	obs.AbilityRebuilt()
	return handler(auth.ContextWithSession(ctx, sess), req)
}
