package remote

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/httpapi"
	"ghginventory.org/internal/registry"
)

func TestMapCheckError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "unauthenticated",
			err:  status.Error(codes.Unauthenticated, "invalid token"),
			want: auth.ErrInvalidToken,
		},
		{
			name: "invalid argument",
			err:  status.Error(codes.InvalidArgument, "unknown action"),
			want: registry.ErrInvalidInput,
		},
		{
			name: "pass through",
			err:  status.Error(codes.Internal, "internal"),
			want: status.Error(codes.Internal, "internal"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapCheckError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapCheckError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func startService(t *testing.T) (*Client, string) {
	t.Helper()
	ctx := context.Background()

	store := registry.NewInMemory()
	company, err := store.CreateCompany(ctx, registry.Company{
		Name:        "Registry",
		CompanyRole: registry.CompanyRoleGovernment,
		State:       registry.CompanyStateActive,
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	root, err := store.CreateUser(ctx, registry.User{
		Name:      "Root",
		Email:     "root@example.org",
		Role:      registry.RoleRoot,
		CompanyID: company.CompanyID,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	svc, err := auth.NewService(store, auth.WithTokenSecret("0123456789abcdef0123"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	tok, err := svc.IssueToken(root)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	listener := bufconn.Listen(1024 * 1024)
	server := httpapi.NewGRPCServer(svc, httpapi.ReadyProbe{}).Register()
	go func() { _ = server.Serve(listener) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		server.Stop()
		_ = listener.Close()
	})
	return client, tok.AccessToken
}

func TestClientCheck(t *testing.T) {
	client, token := startService(t)
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	allowed, err := client.Check(ctx, token, Query{Action: "manage", Subject: "all"})
	if err != nil {
		t.Fatalf("Check manage all: %v", err)
	}
	if !allowed {
		t.Fatalf("expected root to manage everything")
	}

	allowed, err = client.Check(ctx, token, Query{Action: "update", Subject: "User", Field: "companyRole"})
	if err != nil {
		t.Fatalf("Check companyRole: %v", err)
	}
	if allowed {
		t.Fatalf("expected companyRole updates to be denied")
	}

	allowed, err = client.Check(ctx, token, Query{
		Action:   "update",
		Subject:  "Company",
		Instance: map[string]any{"companyId": 1, "companyRole": "Government"},
	})
	if err != nil {
		t.Fatalf("Check company: %v", err)
	}
	if !allowed {
		t.Fatalf("expected root to update its company")
	}
}

func TestClientCheckErrors(t *testing.T) {
	client, token := startService(t)
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	if _, err := client.Check(ctx, "bogus", Query{Action: "read", Subject: "User"}); !IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if _, err := client.Check(ctx, token, Query{Action: "approve", Subject: "User"}); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClientServing(t *testing.T) {
	client, _ := startService(t)
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	ok, err := client.Serving(ctx)
	if err != nil {
		t.Fatalf("Serving: %v", err)
	}
	if !ok {
		t.Fatalf("expected SERVING")
	}
}
