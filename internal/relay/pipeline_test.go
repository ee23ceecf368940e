package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/config"
	"tgrelay/internal/constants"
	"tgrelay/internal/logger"
	"tgrelay/internal/media"
)

type fakeDocSink struct {
	mu        sync.Mutex
	disabled  bool
	existsErr error
	insertErr error
	records   map[string]*LogRecord
}

func newFakeDocSink() *fakeDocSink {
	return &fakeDocSink{records: map[string]*LogRecord{}}
}

func (f *fakeDocSink) key(chatID, messageID int64) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

func (f *fakeDocSink) Enabled() bool {
	return !f.disabled
}

func (f *fakeDocSink) Exists(ctx context.Context, chatID, messageID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.records[f.key(chatID, messageID)]
	return ok, nil
}

func (f *fakeDocSink) Insert(ctx context.Context, rec *LogRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return "", f.insertErr
	}
	k := f.key(rec.ChatID, rec.MessageID)
	if _, ok := f.records[k]; ok {
		return "", ErrDuplicateRecord
	}
	f.records[k] = rec
	return k, nil
}

func (f *fakeDocSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type delivery struct {
	rec    *LogRecord
	staged *media.Staged
}

type fakeHook struct {
	mu         sync.Mutex
	disabled   bool
	err        error
	deliveries []delivery
}

func (f *fakeHook) Enabled() bool {
	return !f.disabled
}

func (f *fakeHook) Deliver(ctx context.Context, rec *LogRecord, staged *media.Staged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{rec: rec, staged: staged})
	return f.err
}

func (f *fakeHook) delivered() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

type fakeStager struct {
	mu     sync.Mutex
	err    error
	staged []*media.Staged
}

func (f *fakeStager) Stage(ctx context.Context, chatID, messageID int64, fileID string, declaredSize int64, hintMIME string) (*media.Staged, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &media.Staged{Path: fmt.Sprintf("%d_%d", chatID, messageID), Size: declaredSize}
	f.staged = append(f.staged, s)
	return s, nil
}

func (f *fakeStager) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.staged)
}

type fakeMirror struct {
	mu        sync.Mutex
	disabled  bool
	published []*LogRecord
}

func (f *fakeMirror) Enabled() bool {
	return !f.disabled
}

func (f *fakeMirror) Publish(ctx context.Context, rec *LogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, rec)
	return nil
}

func (f *fakeMirror) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type pipelineFixture struct {
	pipe   *Pipeline
	docs   *fakeDocSink
	hook   *fakeHook
	stager *fakeStager
	mirror *fakeMirror
}

func newPipelineFixture(t *testing.T, cfg config.RelayConfig) *pipelineFixture {
	t.Helper()

	fx := &pipelineFixture{
		docs:   newFakeDocSink(),
		hook:   &fakeHook{},
		stager: &fakeStager{},
		mirror: &fakeMirror{disabled: true},
	}

	pipe, err := NewPipeline(cfg, 999, fx.docs, fx.hook, fx.stager, fx.mirror, logger.NopLogger())
	require.NoError(t, err)
	fx.pipe = pipe
	return fx
}

func (fx *pipelineFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.pipe.Close(context.Background()))
}

func textEvent(chatID, messageID int64, text string) *InboundEvent {
	return &InboundEvent{
		Chat:      Chat{ID: chatID, Title: "chat"},
		MessageID: messageID,
		From:      &User{ID: 5, Username: "alice"},
		Text:      text,
	}
}

func TestPipeline_RelaysTextMessage(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{ForwardDuplicates: true})

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())

	deliveries := fx.hook.delivered()
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(100), deliveries[0].rec.ChatID)
	assert.Equal(t, int64(7), deliveries[0].rec.MessageID)
	assert.Equal(t, "hi", deliveries[0].rec.Text)
	assert.Nil(t, deliveries[0].staged)

	stats := fx.pipe.Stats()
	assert.Equal(t, uint64(1), stats.Relayed)
	assert.Equal(t, uint64(0), stats.Skipped)
}

func TestPipeline_SkipsOwnMessages(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})

	outgoing := textEvent(100, 1, "mine")
	outgoing.Outgoing = true
	fx.pipe.Relay(context.Background(), outgoing)

	self := textEvent(100, 2, "also mine")
	self.From = &User{ID: 999}
	fx.pipe.Relay(context.Background(), self)

	fx.drain(t)

	assert.Equal(t, 0, fx.docs.count())
	assert.Empty(t, fx.hook.delivered())
	assert.Equal(t, uint64(2), fx.pipe.Stats().Skipped)
}

func TestPipeline_IncludeOutgoingKeepsOwnMessages(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{IncludeOutgoing: true})

	outgoing := textEvent(100, 1, "mine")
	outgoing.Outgoing = true
	fx.pipe.Relay(context.Background(), outgoing)
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	assert.Len(t, fx.hook.delivered(), 1)
}

func TestPipeline_SkipsDenylistedSenders(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{
		DenylistedSenderIDs: []int64{5},
	})

	fx.pipe.Relay(context.Background(), textEvent(100, 1, "blocked"))
	fx.drain(t)

	assert.Equal(t, 0, fx.docs.count())
	assert.Empty(t, fx.hook.delivered())
	assert.Equal(t, uint64(1), fx.pipe.Stats().Skipped)
}

func TestPipeline_DuplicateInsertsOnce(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{ForwardDuplicates: true})

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	// duplicates still reach the webhook under forward_duplicates
	assert.Len(t, fx.hook.delivered(), 2)

	stats := fx.pipe.Stats()
	assert.Equal(t, uint64(2), stats.Relayed)
	assert.Equal(t, uint64(1), stats.Duplicates)
}

func TestPipeline_DuplicateForwardingSuppressed(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{ForwardDuplicates: false})

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	assert.Len(t, fx.hook.delivered(), 1)
	assert.Equal(t, uint64(1), fx.pipe.Stats().Duplicates)
}

func TestPipeline_InsertRaceCountsAsDuplicate(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{ForwardDuplicates: false})

	// another writer persisted the record between the check and the insert
	fx.docs.records["100:7"] = &LogRecord{ChatID: 100, MessageID: 7}
	fx.docs.existsErr = errors.New("lookup unavailable")

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Empty(t, fx.hook.delivered())
	assert.Equal(t, uint64(1), fx.pipe.Stats().Duplicates)
}

func TestPipeline_StoreErrorDoesNotStopForwarding(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})
	fx.docs.existsErr = errors.New("store down")
	fx.docs.insertErr = errors.New("store down")

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Len(t, fx.hook.delivered(), 1)
	assert.Equal(t, uint64(1), fx.pipe.Stats().Relayed)
}

func TestPipeline_DisabledDocSinkStillForwards(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})
	fx.docs.disabled = true

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	assert.Equal(t, 0, fx.docs.count())
	assert.Len(t, fx.hook.delivered(), 1)
}

func TestPipeline_FilterRejects(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{
		FilterExpression: "chat_id == 100 && message_id == 7 && from_user_id == 5 && username == 'alice' && text == 'hi' && !has_media",
	})

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.pipe.Relay(context.Background(), textEvent(200, 8, "other"))
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	deliveries := fx.hook.delivered()
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(100), deliveries[0].rec.ChatID)
	assert.Equal(t, uint64(1), fx.pipe.Stats().Skipped)
}

func TestPipeline_FilterFallbackDeny(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{
		// division by a zero sender id fails at evaluation time
		FilterExpression: "100 / from_user_id == 20",
		FilterFallback:   constants.FallbackDeny,
	})

	ev := textEvent(100, 7, "hi")
	ev.From = nil
	fx.pipe.Relay(context.Background(), ev)
	fx.drain(t)

	assert.Equal(t, 0, fx.docs.count())
	assert.Empty(t, fx.hook.delivered())
}

func TestPipeline_FilterFallbackAllow(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{
		FilterExpression: "100 / from_user_id == 20",
		FilterFallback:   constants.FallbackAllow,
	})

	ev := textEvent(100, 7, "hi")
	ev.From = nil
	fx.pipe.Relay(context.Background(), ev)
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	assert.Len(t, fx.hook.delivered(), 1)
}

func TestPipeline_MediaStagedAndHanded(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})

	ev := textEvent(100, 7, "")
	ev.Caption = "photo"
	ev.Media = &Media{Kind: "photo", FileID: "f1", Size: 128}
	fx.pipe.Relay(context.Background(), ev)
	fx.drain(t)

	deliveries := fx.hook.delivered()
	require.Len(t, deliveries, 1)
	require.NotNil(t, deliveries[0].staged)
	assert.Equal(t, "100_7", deliveries[0].staged.Path)
	assert.Equal(t, 1, fx.stager.calls())
}

func TestPipeline_StagingFailureForwardsWithoutMedia(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})
	fx.stager.err = errors.New("download failed")

	ev := textEvent(100, 7, "")
	ev.Media = &Media{Kind: "document", FileID: "f1"}
	fx.pipe.Relay(context.Background(), ev)
	fx.drain(t)

	deliveries := fx.hook.delivered()
	require.Len(t, deliveries, 1)
	assert.Nil(t, deliveries[0].staged)
	assert.Equal(t, uint64(1), fx.pipe.Stats().Relayed)
}

func TestPipeline_DisabledHookSkipsStagingAndDelivery(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})
	fx.hook.disabled = true

	ev := textEvent(100, 7, "hi")
	ev.Media = &Media{Kind: "photo", FileID: "f1"}
	fx.pipe.Relay(context.Background(), ev)
	fx.drain(t)

	assert.Equal(t, 1, fx.docs.count())
	assert.Empty(t, fx.hook.delivered())
	assert.Equal(t, 0, fx.stager.calls())
}

func TestPipeline_MirrorPublishedOnInsert(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{ForwardDuplicates: true})
	fx.mirror.disabled = false

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))
	fx.drain(t)

	// only the insert publishes; the duplicate does not
	assert.Equal(t, 1, fx.mirror.count())
}

func TestPipeline_ClosedDropsEvents(t *testing.T) {
	fx := newPipelineFixture(t, config.RelayConfig{})
	fx.drain(t)

	fx.pipe.Relay(context.Background(), textEvent(100, 7, "hi"))

	assert.Equal(t, 0, fx.docs.count())
	assert.Empty(t, fx.hook.delivered())
}
