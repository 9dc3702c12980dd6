package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client aliases the raw go-redis client. The application wraps it in a
// key-prefixing layer; this package only owns the connection handshake.
type Client = goredis.Client

// Options describes one Redis connection. OpTimeout bounds individual read
// and write commands.
type Options struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// Connect opens the connection and verifies it with a ping before handing it
// out, so a misconfigured address fails at startup rather than on first use.
func Connect(opts Options) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
	})

	pingTimeout := opts.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func Close(c *Client) {
	if c == nil {
		return
	}
	_ = c.Close()
}
