package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/images-to-pdf/internal/bundler"
	"github.com/book-expert/images-to-pdf/internal/publish"
)

var errFakeStore = errors.New("object store unavailable")

// fakeStore records Put calls. Any other ObjectStore method panics.
type fakeStore struct {
	jetstream.ObjectStore

	err     error
	objects map[string][]byte
}

func (f *fakeStore) Put(_ context.Context, meta jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error) {
	if f.err != nil {
		return nil, f.err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	f.objects[meta.Name] = data

	return &jetstream.ObjectInfo{}, nil
}

// fakeJetStream records Publish calls. Any other JetStream method panics.
type fakeJetStream struct {
	jetstream.JetStream

	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(
	_ context.Context,
	subject string,
	payload []byte,
	_ ...jetstream.PublishOpt,
) (*jetstream.PubAck, error) {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)

	return &jetstream.PubAck{}, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func testOptions() publish.Options {
	return publish.Options{
		URL:               "nats://127.0.0.1:4222",
		StreamName:        "PDF_FILES",
		Subject:           "pdf.created",
		ObjectStoreBucket: "pdf_files",
		TenantID:          "tenant-a",
		UserID:            "user-7",
	}
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tenant/wf/ch1.pdf", publish.ObjectName("tenant", "wf", filepath.Join("/", "books", "ch1.pdf")))
}

func TestPDFCreated_UploadsAndPublishes(t *testing.T) {
	t.Parallel()

	pdfPath := filepath.Join(t.TempDir(), "ch1.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.3 test"), 0o600))

	store := &fakeStore{objects: map[string][]byte{}}
	jetStream := &fakeJetStream{}
	publisher := publish.NewPublisherForTest(jetStream, store, testOptions(), newTestLogger(t))

	err := publisher.PDFCreated(context.Background(), bundler.Artifact{Dir: "", Path: pdfPath, Pages: 1, Bytes: 13})
	require.NoError(t, err)

	require.Equal(t, []string{"pdf.created"}, jetStream.subjects)

	var event events.PDFCreatedEvent
	require.NoError(t, json.Unmarshal(jetStream.payloads[0], &event))
	require.NotEmpty(t, event.Header.WorkflowID)
	assert.Equal(t, publish.ObjectName("tenant-a", event.Header.WorkflowID, pdfPath), event.PDFKey)
	assert.Equal(t, []byte("%PDF-1.3 test"), store.objects[event.PDFKey])
	assert.Equal(t, "tenant-a", event.Header.TenantID)
	assert.Equal(t, "user-7", event.Header.UserID)
	assert.NotEmpty(t, event.Header.EventID)
	assert.False(t, event.Header.Timestamp.IsZero())
}

func TestPDFCreated_UploadFailureSkipsEvent(t *testing.T) {
	t.Parallel()

	pdfPath := filepath.Join(t.TempDir(), "ch1.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF"), 0o600))

	jetStream := &fakeJetStream{}
	publisher := publish.NewPublisherForTest(
		jetStream,
		&fakeStore{err: errFakeStore, objects: map[string][]byte{}},
		testOptions(),
		newTestLogger(t),
	)

	err := publisher.PDFCreated(context.Background(), bundler.Artifact{Dir: "", Path: pdfPath, Pages: 1, Bytes: 4})
	require.ErrorIs(t, err, errFakeStore)
	assert.Empty(t, jetStream.subjects)

	err = publisher.PDFCreated(context.Background(), bundler.Artifact{Dir: "", Path: pdfPath + ".missing", Pages: 1, Bytes: 0})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPDFCreated_SameBaseNameGetsDistinctKeys(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	first := filepath.Join(root, "vol1", "ch1.pdf")
	second := filepath.Join(root, "vol2", "ch1.pdf")

	for _, path := range []string{first, second} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(path), 0o600))
	}

	store := &fakeStore{objects: map[string][]byte{}}
	jetStream := &fakeJetStream{}
	publisher := publish.NewPublisherForTest(jetStream, store, testOptions(), newTestLogger(t))

	for _, path := range []string{first, second} {
		err := publisher.PDFCreated(context.Background(), bundler.Artifact{Dir: filepath.Dir(path), Path: path, Pages: 1, Bytes: 0})
		require.NoError(t, err)
	}

	require.Len(t, store.objects, 2)
	require.Len(t, jetStream.payloads, 2)

	keys := make([]string, 0, len(jetStream.payloads))
	workflows := make(map[string]struct{}, len(jetStream.payloads))

	for index, payload := range jetStream.payloads {
		var event events.PDFCreatedEvent
		require.NoError(t, json.Unmarshal(payload, &event))

		keys = append(keys, event.PDFKey)
		workflows[event.Header.WorkflowID] = struct{}{}

		assert.Equal(t, []byte([]string{first, second}[index]), store.objects[event.PDFKey])
	}

	assert.NotEqual(t, keys[0], keys[1])
	assert.Len(t, workflows, 2)

	publisher.Close()
}

func TestConnect_RequiresURL(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.URL = ""

	_, err := publish.Connect(context.Background(), opts, newTestLogger(t))
	require.ErrorIs(t, err, publish.ErrURLRequired)
}

func TestNewStreamConfig(t *testing.T) {
	t.Parallel()

	cfg := publish.NewStreamConfigForTest("PDF_FILES", "pdf.created")
	assert.Equal(t, "PDF_FILES", cfg.Name)
	assert.Equal(t, []string{"pdf.created"}, cfg.Subjects)
	assert.Equal(t, jetstream.WorkQueuePolicy, cfg.Retention)
}
