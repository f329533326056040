package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/GPTx-global/flightoracle/oracle/log"
)

const dialAttempts = 5

// Dial connects to the node and confirms it answers. Only the connection is
// retried; transactions never are.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	var client *ethclient.Client

	connect := func() error {
		c, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			return err
		}

		if _, err := c.ChainID(ctx); err != nil {
			c.Close()
			return err
		}

		client = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dialAttempts), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warnf("ledger %s not reachable, retrying in %v: %v", endpoint, wait, err)
	}

	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}

	return client, nil
}
