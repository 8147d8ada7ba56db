package notify

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Backend is a publisher/subscriber pair for booking topics.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (b Backend) Close() error {
	perr := b.Publisher.Close()
	serr := b.Subscriber.Close()
	if perr != nil {
		return perr
	}
	return serr
}

// NewInProcess keeps messages inside the process. Nothing survives a restart.
func NewInProcess(logger watermill.LoggerAdapter) Backend {
	ch := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return Backend{Publisher: ch, Subscriber: ch}
}

// NewRedisStream publishes to Redis streams; subscribers in consumerGroup share the load.
func NewRedisStream(client *redis.Client, consumerGroup string, logger watermill.LoggerAdapter) (Backend, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, logger)
	if err != nil {
		return Backend{}, fmt.Errorf("creating publisher: %w", err)
	}
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return Backend{}, fmt.Errorf("creating subscriber: %w", err)
	}
	return Backend{Publisher: pub, Subscriber: sub}, nil
}
