package prometheus

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	tokengate "github.com/tokengate/tokengate"
)

type stubProvider struct{}

func (stubProvider) GetUserByIdentifier(context.Context, string) (tokengate.UserRecord, error) {
	return tokengate.UserRecord{}, errors.New("not implemented")
}

func (stubProvider) GetUserByID(context.Context, string) (tokengate.UserRecord, error) {
	return tokengate.UserRecord{}, errors.New("not implemented")
}

func (stubProvider) CreateUser(context.Context, tokengate.CreateUserInput) (tokengate.UserRecord, error) {
	return tokengate.UserRecord{}, errors.New("not implemented")
}

func newEngineTest(t *testing.T) *tokengate.Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := tokengate.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("exporter-test-access-secret-01234567")
	cfg.JWT.RefreshSecret = []byte("exporter-test-refresh-secret-0123456")

	engine, err := tokengate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(stubProvider{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func TestCollectorExposesCounters(t *testing.T) {
	engine := newEngineTest(t)

	// Two validation failures to have a nonzero counter.
	_, _ = engine.ValidateAccess(context.Background(), "garbage")
	_, _ = engine.ValidateAccess(context.Background(), "more-garbage")

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewCollector(engine)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			values[family.GetName()] = metric.GetCounter().GetValue()
		}
	}

	if got := values["tokengate_validate_failure_total"]; got != 2 {
		t.Fatalf("validate_failure = %v, want 2", got)
	}
	if got := values["tokengate_validate_success_total"]; got != 0 {
		t.Fatalf("validate_success = %v, want 0", got)
	}
	if _, ok := values["tokengate_refresh_success_total"]; !ok {
		t.Fatal("refresh counter not exported")
	}
}
