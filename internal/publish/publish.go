// Package publish hands created PDFs to the book-expert pipeline: each PDF is
// stored in a JetStream object store and announced with a PDFCreatedEvent.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/images-to-pdf/internal/bundler"
)

// ErrURLRequired is returned by Connect when no NATS URL is configured.
var ErrURLRequired = errors.New("nats url is required")

// Options configures a NATSPublisher.
type Options struct {
	URL               string
	StreamName        string
	Subject           string
	ObjectStoreBucket string
	TenantID          string
	UserID            string
}

// NATSPublisher uploads PDFs and publishes PDFCreatedEvents. It implements
// bundler.Notifier.
type NATSPublisher struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	store     jetstream.ObjectStore
	log       *logger.Logger
	opts      Options
}

// Connect dials NATS and makes sure the stream and the object store exist.
func Connect(ctx context.Context, opts Options, log *logger.Logger) (*NATSPublisher, error) {
	if opts.URL == "" {
		return nil, ErrURLRequired
	}

	natsConnection, connErr := nats.Connect(opts.URL)
	if connErr != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", connErr)
	}

	log.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	store, setupErr := setupJetStream(ctx, jetStream, opts)
	if setupErr != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to set up JetStream resources: %w", setupErr)
	}

	publisher := newPublisher(jetStream, store, opts, log)
	publisher.conn = natsConnection

	return publisher, nil
}

func newPublisher(
	jetStream jetstream.JetStream,
	store jetstream.ObjectStore,
	opts Options,
	log *logger.Logger,
) *NATSPublisher {
	return &NATSPublisher{
		conn:      nil,
		jetStream: jetStream,
		store:     store,
		log:       log,
		opts:      opts,
	}
}

// setupJetStream ensures the stream and the object store exist and returns a
// handle to the store.
func setupJetStream(
	ctx context.Context,
	jetStream jetstream.JetStream,
	opts Options,
) (jetstream.ObjectStore, error) {
	_, streamErr := jetStream.CreateStream(ctx, *newStreamConfig(opts.StreamName, opts.Subject))
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to create stream '%s': %w", opts.StreamName, streamErr)
	}

	_, objStoreErr := jetStream.CreateObjectStore(ctx, *newObjectStoreConfig(opts.ObjectStoreBucket))
	if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
		return nil, fmt.Errorf(
			"failed to create object store '%s': %w",
			opts.ObjectStoreBucket,
			objStoreErr,
		)
	}

	store, bindErr := jetStream.ObjectStore(ctx, opts.ObjectStoreBucket)
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind to object store '%s': %w", opts.ObjectStoreBucket, bindErr)
	}

	return store, nil
}

func newStreamConfig(name, subject string) *jetstream.StreamConfig {
	return &jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{subject},
		Retention:         jetstream.WorkQueuePolicy,
		MaxConsumers:      -1,
		MaxMsgs:           -1,
		MaxBytes:          -1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: -1,
		MaxMsgSize:        -1,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Compression:       jetstream.NoCompression,
	}
}

func newObjectStoreConfig(bucket string) *jetstream.ObjectStoreConfig {
	return &jetstream.ObjectStoreConfig{
		Bucket:   bucket,
		MaxBytes: -1,
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	}
}

// ObjectName is the object store key of a PDF: <tenant>/<workflow>/<base name>.
// Every PDF gets its own workflow, so PDFs sharing a base name never collide.
func ObjectName(tenantID, workflowID, pdfPath string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, workflowID, filepath.Base(pdfPath))
}

// PDFCreated uploads the artifact and publishes its event.
func (publisher *NATSPublisher) PDFCreated(ctx context.Context, artifact bundler.Artifact) error {
	workflowID := uuid.New().String()
	objectName := ObjectName(publisher.opts.TenantID, workflowID, artifact.Path)

	uploadErr := publisher.upload(ctx, objectName, artifact.Path)
	if uploadErr != nil {
		return uploadErr
	}

	publisher.log.Info("Workflow [%s]: Uploaded '%s'", workflowID, objectName)

	eventJSON, marshalErr := json.Marshal(publisher.newEvent(workflowID, objectName))
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal PDFCreatedEvent: %w", marshalErr)
	}

	_, pubErr := publisher.jetStream.Publish(ctx, publisher.opts.Subject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish PDFCreatedEvent: %w", pubErr)
	}

	publisher.log.Success("Workflow [%s]: Published event for '%s'", workflowID, objectName)

	return nil
}

func (publisher *NATSPublisher) newEvent(workflowID, objectName string) events.PDFCreatedEvent {
	return events.PDFCreatedEvent{
		Header: events.EventHeader{
			WorkflowID: workflowID,
			UserID:     publisher.opts.UserID,
			TenantID:   publisher.opts.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		PDFKey: objectName,
	}
}

func (publisher *NATSPublisher) upload(ctx context.Context, objectName, filePath string) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			publisher.log.Warn("Failed to close file '%s': %v", filePath, closeErr)
		}
	}()

	meta := jetstream.ObjectMeta{
		Name:        objectName,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
	}

	_, putErr := publisher.store.Put(ctx, meta, file)
	if putErr != nil {
		return fmt.Errorf("failed to put '%s' in object store: %w", objectName, putErr)
	}

	return nil
}

// Close drains the NATS connection.
func (publisher *NATSPublisher) Close() {
	if publisher.conn == nil {
		return
	}

	drainErr := publisher.conn.Drain()
	if drainErr != nil {
		publisher.log.Warn("Failed to drain NATS connection: %v", drainErr)
		publisher.conn.Close()
	}
}

var _ bundler.Notifier = (*NATSPublisher)(nil)
