package publish

import (
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go/jetstream"
)

// NewPublisherForTest builds a publisher over injected JetStream handles.
func NewPublisherForTest(
	jetStream jetstream.JetStream,
	store jetstream.ObjectStore,
	opts Options,
	log *logger.Logger,
) *NATSPublisher {
	return newPublisher(jetStream, store, opts, log)
}

// NewStreamConfigForTest exposes newStreamConfig.
func NewStreamConfigForTest(name, subject string) *jetstream.StreamConfig {
	return newStreamConfig(name, subject)
}
