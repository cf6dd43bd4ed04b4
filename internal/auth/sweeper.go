package auth

import (
	"context"
	"log"
	"time"
)

const DefaultTokenSweepInterval = time.Hour

// StartTokenSweeper periodically removes expired tokens so the table does
// not grow without bound. Stops when ctx is cancelled.
func (s *Service) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepExpired(ctx); err != nil {
				log.Printf("sweep expired tokens error: %v", err)
			}
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
