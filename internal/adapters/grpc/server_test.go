package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

func dialBufconn(t *testing.T, lis *bufconn.Listener) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestServer_HealthLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(ctx, mocks.NewMockLogger(), mocks.NewMockConfigProvider())
	lis := bufconn.Listen(1 << 20)
	srv.Serve(lis)
	client := dialBufconn(t, lis)

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()

	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: RelayServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	srv.SetServing(false)
	resp, err = client.Check(callCtx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	srv.GracefulStop()
	assert.Eventually(t, func() bool {
		_, err := client.Check(callCtx, &healthpb.HealthCheckRequest{})
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_DisabledWithoutPort(t *testing.T) {
	cfg := mocks.NewMockConfigProvider()
	cfg.Update(func(c *config.Config) { c.Server.GRPCPort = 0 })

	srv := NewServer(context.Background(), mocks.NewMockLogger(), cfg)
	assert.ErrorIs(t, srv.Start(), ErrDisabled)
}
