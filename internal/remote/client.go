// Package remote is a client for the gRPC AbilityService.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

const (
	serviceName = "ghg.v1.AbilityService"
	checkMethod = "/" + serviceName + "/Check"
)

// Client wraps a connection to AbilityService.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial creates a new client. Without options the transport is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Query is one authorization question. Instance, when set, carries the
// attributes of the entity the question is about.
type Query struct {
	Action   string
	Subject  string
	Field    string
	Instance map[string]any
}

func (q Query) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{"action": q.Action, "subject": q.Subject}
	if q.Field != "" {
		fields["field"] = q.Field
	}
	if q.Instance != nil {
		fields["instance"] = q.Instance
	}
	return structpb.NewStruct(fields)
}

// Check asks whether the bearer of token may perform q.
func (c *Client) Check(ctx context.Context, token string, q Query) (bool, error) {
	req, err := q.toStruct()
	if err != nil {
		return false, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, checkMethod, req, out); err != nil {
		return false, mapCheckError(err)
	}
	return out.GetValue(), nil
}

// Serving reports whether the service health is SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func mapCheckError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", auth.ErrInvalidToken, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", registry.ErrInvalidInput, st.Message())
	}
	return err
}

// IsUnauthenticated reports whether err came from a rejected token.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken)
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
