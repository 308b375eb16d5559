// Package pubsub builds the AMQP publishers and subscribers behind the
// cross-node frame relay. Wiring is non-durable pub/sub: each node consumes
// from its own auto-deleted queue and the broker never persists a frame, so
// relay traffic is best-effort by construction.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

type Provider struct {
	uri    string
	suffix string
	logger watermill.LoggerAdapter
}

// NewProvider prepares a factory for one broker. suffix distinguishes this
// node's queues from its peers'; typically the node id.
func NewProvider(uri, suffix string, logger watermill.LoggerAdapter) *Provider {
	return &Provider{uri: uri, suffix: suffix, logger: logger}
}

func (p *Provider) BuildPublisher() (message.Publisher, error) {
	cfg := amqp.NewNonDurablePubSubConfig(p.uri, nil)
	pub, err := amqp.NewPublisher(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher: %w", err)
	}
	return pub, nil
}

func (p *Provider) BuildSubscriber() (message.Subscriber, error) {
	cfg := amqp.NewNonDurablePubSubConfig(p.uri, amqp.GenerateQueueNameTopicNameWithSuffix(p.suffix))
	sub, err := amqp.NewSubscriber(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber: %w", err)
	}
	return sub, nil
}
