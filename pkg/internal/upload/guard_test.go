package upload_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/upload"
)

var placement = model.Placement{FileURL: "https://r/f", SpaceID: "s", BlockID: "b"}

var errBackend = errors.New("backend down")

func breakerCfg() configs.CircuitBreakerConfig {
	return configs.CircuitBreakerConfig{
		Enabled:           true,
		FailureRate:       0.5,
		MinRequests:       2,
		IntervalSeconds:   60,
		TimeoutSeconds:    60,
		MaxRequestsInHalf: 1,
	}
}

func TestGuardPassesThrough(t *testing.T) {
	calls := 0
	next := upload.UploaderFunc(func(context.Context, io.Reader, upload.Destination) (model.Placement, error) {
		calls++
		return placement, nil
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{}, breakerCfg())

	p, err := g.Upload(context.Background(), nil, upload.Destination{FileName: "a.txt"})
	if err != nil || p != placement || calls != 1 {
		t.Fatalf("Upload() = %+v, %v (calls %d)", p, err, calls)
	}
}

func TestGuardWrapsErrors(t *testing.T) {
	next := upload.UploaderFunc(func(context.Context, io.Reader, upload.Destination) (model.Placement, error) {
		return model.Placement{}, errBackend
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{}, configs.CircuitBreakerConfig{})

	_, err := g.Upload(context.Background(), nil, upload.Destination{FileName: "a.txt"})

	var ue *upload.Error
	if !errors.As(err, &ue) || !errors.Is(err, errBackend) {
		t.Fatalf("Upload() error = %v, want *upload.Error wrapping backend error", err)
	}

	if ue.FileName != "a.txt" {
		t.Errorf("FileName = %q", ue.FileName)
	}
}

func TestGuardRejectsIncompletePlacement(t *testing.T) {
	next := upload.UploaderFunc(func(context.Context, io.Reader, upload.Destination) (model.Placement, error) {
		return model.Placement{FileURL: "https://r/f"}, nil
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{}, configs.CircuitBreakerConfig{})

	if _, err := g.Upload(context.Background(), nil, upload.Destination{}); !errors.Is(err, upload.ErrBadPlacement) {
		t.Fatalf("Upload() error = %v, want ErrBadPlacement", err)
	}
}

func TestGuardOpensCircuit(t *testing.T) {
	calls := 0
	next := upload.UploaderFunc(func(context.Context, io.Reader, upload.Destination) (model.Placement, error) {
		calls++
		return model.Placement{}, errBackend
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{}, breakerCfg())
	ctx := context.Background()

	for range 2 {
		if _, err := g.Upload(ctx, nil, upload.Destination{}); !errors.Is(err, errBackend) {
			t.Fatalf("Upload() error = %v", err)
		}
	}

	_, err := g.Upload(ctx, nil, upload.Destination{})
	if !errors.Is(err, upload.ErrCircuitOpen) || !upload.IsUploadError(err) {
		t.Fatalf("Upload() error = %v, want ErrCircuitOpen", err)
	}

	if calls != 2 {
		t.Errorf("backend called %d times, want 2", calls)
	}
}

func TestGuardIgnoresCancellationForBreaker(t *testing.T) {
	next := upload.UploaderFunc(func(ctx context.Context, _ io.Reader, _ upload.Destination) (model.Placement, error) {
		return model.Placement{}, context.Canceled
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{}, breakerCfg())

	for range 5 {
		_, _ = g.Upload(context.Background(), nil, upload.Destination{})
	}

	if g.State().String() != "closed" {
		t.Errorf("breaker state = %s, want closed", g.State())
	}
}

func TestGuardRateLimitHonoursContext(t *testing.T) {
	next := upload.UploaderFunc(func(context.Context, io.Reader, upload.Destination) (model.Placement, error) {
		return placement, nil
	})

	g := upload.NewGuard(next, configs.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}, configs.CircuitBreakerConfig{})

	if _, err := g.Upload(context.Background(), nil, upload.Destination{}); err != nil {
		t.Fatalf("first Upload() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Upload(ctx, nil, upload.Destination{}); !upload.IsUploadError(err) {
		t.Fatalf("second Upload() error = %v, want rate-limit upload error", err)
	}
}
