package upload

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/model"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// Guard 为 Uploader 加上全局限流与熔断.
type Guard struct {
	next    Uploader
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zerolog.Logger
}

// NewGuard 按配置包装 next.限流与熔断均可单独关闭.
func NewGuard(next Uploader, rl configs.RateLimitConfig, cb configs.CircuitBreakerConfig) *Guard {
	g := &Guard{
		next:   next,
		name:   BackendName(next),
		logger: nlog.Component("upload"),
	}

	if rl.Enabled && rl.RPS > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}

		g.limiter = rate.NewLimiter(rate.Limit(rl.RPS), burst)
	}

	if cb.Enabled {
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "upload-" + g.name,
			MaxRequests: cb.MaxRequestsInHalf,
			Interval:    cb.Interval(),
			Timeout:     cb.Timeout(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cb.MinRequests {
					return false
				}

				return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.FailureRate
			},
			// 调用方取消不算后端故障
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("upload circuit state changed")
			},
		})
	}

	return g
}

// Name 返回被包装后端的名称.
func (g *Guard) Name() string {
	return g.name
}

// State 熔断器状态，未启用时总为 closed.
func (g *Guard) State() gobreaker.State {
	if g.breaker == nil {
		return gobreaker.StateClosed
	}

	return g.breaker.State()
}

// Upload 等待令牌后经熔断器调用下游.
func (g *Guard) Upload(ctx context.Context, content io.Reader, dest Destination) (model.Placement, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return model.Placement{}, Wrap(g.name, dest.FileName, "rate limit", err)
		}
	}

	call := func() (model.Placement, error) {
		p, err := g.next.Upload(ctx, content, dest)
		if err != nil {
			return model.Placement{}, err
		}

		if !p.IsComplete() {
			return model.Placement{}, ErrBadPlacement
		}

		return p, nil
	}

	if g.breaker == nil {
		p, err := call()
		return p, Wrap(g.name, dest.FileName, "", err)
	}

	out, err := g.breaker.Execute(func() (any, error) { return call() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.Placement{}, Wrap(g.name, dest.FileName, "", errors.Join(ErrCircuitOpen, err))
	}

	if err != nil {
		return model.Placement{}, Wrap(g.name, dest.FileName, "", err)
	}

	return out.(model.Placement), nil
}
