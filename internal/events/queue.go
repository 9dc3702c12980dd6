package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Queue is the in-process event queue decoupling webhook acknowledgment
// from reconciliation. A single gochannel pub/sub backs both sides; the
// router runs the handlers with retry and panic recovery.
type Queue struct {
	pubsub *gochannel.GoChannel
	router *message.Router
}

func NewQueue(logger watermill.LoggerAdapter) (*Queue, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create queue router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)

	return &Queue{pubsub: pubsub, router: router}, nil
}

// Publisher returns the side the webhook endpoint publishes to.
func (q *Queue) Publisher() message.Publisher {
	return q.pubsub
}

// AddHandler registers a worker for a topic. Must be called before Run.
func (q *Queue) AddHandler(name, topic string, handler message.NoPublishHandlerFunc) {
	q.router.AddNoPublisherHandler(name, topic, q.pubsub, handler)
}

// Run blocks consuming messages until the context is canceled.
func (q *Queue) Run(ctx context.Context) error {
	return q.router.Run(ctx)
}

// Running is closed once the router consumes messages.
func (q *Queue) Running() <-chan struct{} {
	return q.router.Running()
}

func (q *Queue) Close() error {
	if err := q.router.Close(); err != nil {
		return err
	}
	return q.pubsub.Close()
}
