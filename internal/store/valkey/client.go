package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/nightcrawler/internal/config"
)

// NewClient connects to Valkey, retrying with exponential backoff for up to
// cfg.ConnectTimeout. A zero timeout means a single attempt.
func NewClient(ctx context.Context, cfg config.ValkeyConfig) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	var client valkey.Client
	connect := func() error {
		c, err := valkey.NewClient(opts)
		if err != nil {
			return fmt.Errorf("create valkey client: %w", err)
		}
		// Verify connectivity
		if err := c.Do(ctx, c.B().Ping().Build()).Error(); err != nil {
			c.Close()
			return fmt.Errorf("ping valkey: %w", err)
		}
		client = c
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if cfg.ConnectTimeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxElapsedTime = cfg.ConnectTimeout
		policy = exp
	}

	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return client, nil
}
