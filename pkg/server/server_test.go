package server

import (
	"context"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/pairs-backtest/pkg/backtest"
	"github.com/yourusername/pairs-backtest/pkg/marketdata"
)

func syntheticPrices(n int) *marketdata.PriceTable {
	rng := rand.New(rand.NewSource(11))
	ts := make([]time.Time, n)
	a, b := make([]float64, n), make([]float64, n)
	day := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	pb, noise := 80.0, 0.0
	for i := 0; i < n; i++ {
		pb += rng.NormFloat64()
		noise = 0.7*noise + rng.NormFloat64()*0.5
		ts[i] = day.AddDate(0, 0, i)
		a[i], b[i] = 1.5*pb+5+noise, pb
	}
	return &marketdata.PriceTable{SymbolA: "AAA", SymbolB: "BBB", Timestamps: ts, A: a, B: b}
}

func startServer(t *testing.T, opts Options) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewService(zerolog.Nop(), opts))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client.conn
}

func withPrices(opts Options) Options {
	prices := syntheticPrices(300)
	opts.Setup = func(r *backtest.Runner) { r.SetPrices(prices) }
	return opts
}

func TestService_Run(t *testing.T) {
	dir := t.TempDir()
	client := NewClient(startServer(t, withPrices(Options{ResultDir: dir, MaxConcurrent: 2})))

	cfg := backtest.DefaultConfig()
	cfg.Name = "grpc_pair"
	cfg.Strategy.Lookback = 20
	cfg.Output = backtest.OutputSettings{}

	summary, err := client.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "grpc_pair", summary.Name)
	assert.Equal(t, "AAA", summary.SymbolA)
	assert.Equal(t, 300, summary.Periods)
	assert.Equal(t, backtest.BetaSourceEngleGranger, summary.BetaSource)
	assert.InDelta(t, 1.5, summary.Beta, 0.2)
	assert.NotEmpty(t, summary.RunID)
}

func TestService_InvalidConfig(t *testing.T) {
	client := NewClient(startServer(t, withPrices(Options{})))

	cfg := backtest.DefaultConfig()
	cfg.Strategy.Lookback = 1
	_, err := client.Run(context.Background(), cfg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := structpb.NewStruct(map[string]interface{}{"strategy": "not a map"})
	require.NoError(t, err)
	_, err = client.RunRaw(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_RejectsPathInName(t *testing.T) {
	base := t.TempDir()
	resultDir := filepath.Join(base, "results")
	client := NewClient(startServer(t, withPrices(Options{ResultDir: resultDir})))

	req, err := structpb.NewStruct(map[string]interface{}{
		"name":     "../escaped",
		"strategy": map[string]interface{}{"lookback": 20},
		"output":   map[string]interface{}{"generate_report": true, "save_series": true},
	})
	require.NoError(t, err)
	_, err = client.RunRaw(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be written for a rejected run")
}

func TestService_RunFailure(t *testing.T) {
	// 没有价格注入，CSV 路径为空，加载失败
	client := NewClient(startServer(t, Options{ResultDir: t.TempDir()}))

	req, err := structpb.NewStruct(map[string]interface{}{"name": "no_data"})
	require.NoError(t, err)
	_, err = client.RunRaw(context.Background(), req)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealth(t *testing.T) {
	conn := startServer(t, Options{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.InvalidArgument, status.Code(toStatus(backtest.ErrInvalidConfig)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(assert.AnError)))
}
