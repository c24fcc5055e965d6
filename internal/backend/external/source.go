package external

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	pb "github.com/LeoXDXp/ACS/internal/pb/v1"
)

// Source pushes fault states to the collector. It is safe for concurrent use.
type Source struct {
	name    string
	client  *pb.FaultStateServiceClient
	limiter *rate.Limiter
	timeout time.Duration
	closed  atomic.Bool
}

func newSource(name string, client *pb.FaultStateServiceClient, settings Settings) *Source {
	s := &Source{
		name:    name,
		client:  client,
		timeout: settings.Timeout,
	}

	if settings.PushRate > 0 {
		burst := max(int(settings.PushRate), 1)
		s.limiter = rate.NewLimiter(rate.Limit(settings.PushRate), burst)
	}

	return s
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Push sends one fault state, waiting for the push limiter first.
func (s *Source) Push(ctx context.Context, state *alarm.FaultState) error {
	if s.closed.Load() {
		return ErrSourceClosed
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for push slot: %w", err)
		}
	}

	msg, err := pb.EncodeFaultState(s.name, state)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Push(callCtx, msg); err != nil {
		return fmt.Errorf("push fault state %s: %w", state.Triplet(), err)
	}

	return nil
}

// Close marks the source closed. The connection belongs to the backend.
func (s *Source) Close() error {
	s.closed.Store(true)

	return nil
}
