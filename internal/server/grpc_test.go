package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alfredjeanlab/cmevents/internal/poller"
)

func dialBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCHealth_TracksStale(t *testing.T) {
	env := newTestEnv(t, "secret")
	conn := dialBufconn(t, env.srv.NewGRPCServer())
	hc := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(service string, want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		// No credentials: the health service is exempt from auth.
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		if resp.GetStatus() != want {
			t.Fatalf("Check(%q) = %v, want %v", service, resp.GetStatus(), want)
		}
	}

	check(ServiceName, healthpb.HealthCheckResponse_SERVING)
	check("", healthpb.HealthCheckResponse_SERVING)

	env.srv.SetStale(poller.State{Stale: true, ConsecutiveFailures: 5})
	check(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	// The process itself is still up.
	check("", healthpb.HealthCheckResponse_SERVING)

	env.srv.SetStale(poller.State{})
	check(ServiceName, healthpb.HealthCheckResponse_SERVING)

	env.srv.Shutdown()
	check("", healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestGRPCHealth_UnknownService(t *testing.T) {
	env := newTestEnv(t, "")
	conn := dialBufconn(t, env.srv.NewGRPCServer())

	_, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
