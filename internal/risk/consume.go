package risk

import (
	"context"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/models"
)

// Consume drains fills until the channel closes or ctx is cancelled,
// applying each one via OnFill. A channel close ends the loop cleanly;
// per spec §7, a fill channel closed unexpectedly threatens position
// accounting and the caller is expected to treat loop exit as fatal to
// the pipeline, not just to this consumer.
func (m *Manager) Consume(ctx context.Context, fills <-chan models.Fill) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fill, ok := <-fills:
			if !ok {
				return nil
			}
			if err := m.OnFill(ctx, fill); err != nil {
				m.log.Error("failed to persist fill", zap.String("symbol", fill.Symbol), zap.Error(err))
			}
		}
	}
}
