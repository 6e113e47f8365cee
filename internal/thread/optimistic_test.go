// ABOUTME: Tests for optimistic append, wholesale revert, and draft restoration.
// ABOUTME: Uses in-test fakes for the sender and refresher.

package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/dedupe"
)

type fakeSender struct {
	err   error
	calls []Message
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, msg Message) error {
	f.calls = append(f.calls, msg)
	return f.err
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func TestSubmit_AppendsOptimisticallyAndRefreshes(t *testing.T) {
	store := NewMessageStore("conv-123")
	sender := &fakeSender{}
	refresher := &fakeRefresher{}
	w := NewOptimisticWriter(store, sender, refresher, nil, nil)

	w.SetDraft("Hello")
	msg, err := w.Submit(context.Background(), SourceText)
	require.NoError(t, err)

	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, SourceText, msg.Source)
	assert.NotEmpty(t, msg.ID)

	require.Len(t, store.Snapshot(), 1)
	assert.Empty(t, w.Draft(), "draft cleared on submit")
	require.Len(t, store.Pending(), 1, "entry stays pending until a snapshot confirms it")
	require.Len(t, sender.calls, 1)
	assert.Equal(t, 1, refresher.calls, "one authoritative re-fetch after success")
}

func TestSubmit_FailureRevertsSequenceAndDraft(t *testing.T) {
	store := NewMessageStore("conv-123")
	store.Replace([]Message{{Role: RoleAssistant, Content: "earlier reply", Timestamp: time.Now()}})
	before := store.Snapshot()

	sender := &fakeSender{err: errors.New("connection refused")}
	refresher := &fakeRefresher{}
	w := NewOptimisticWriter(store, sender, refresher, nil, nil)

	w.SetDraft("doomed")
	_, err := w.Submit(context.Background(), SourceText)
	require.Error(t, err)

	assert.Equal(t, before, store.Snapshot(), "full pre-submit sequence restored")
	assert.Equal(t, "doomed", w.Draft(), "draft restored for retry")
	assert.Empty(t, store.Pending(), "reverted entry is not pending")
	assert.Zero(t, refresher.calls, "no re-fetch after a failed send")
}

func TestSubmit_EmptyDraft(t *testing.T) {
	w := NewOptimisticWriter(NewMessageStore("conv-1"), &fakeSender{}, nil, nil, nil)

	_, err := w.Submit(context.Background(), SourceText)
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestSubmit_DoubleSubmitSwallowed(t *testing.T) {
	store := NewMessageStore("conv-1")
	sender := &fakeSender{}
	w := NewOptimisticWriter(store, sender, nil, dedupe.New(time.Minute, 16), nil)

	w.SetDraft("ok")
	_, err := w.Submit(context.Background(), SourceText)
	require.NoError(t, err)

	w.SetDraft("ok")
	_, err = w.Submit(context.Background(), SourceText)
	assert.ErrorIs(t, err, ErrDuplicateSubmit)

	assert.Len(t, sender.calls, 1)
	assert.Len(t, store.Snapshot(), 1)
}

func TestSubmit_FailedSendIsNotMarkedAsDuplicate(t *testing.T) {
	store := NewMessageStore("conv-1")
	sender := &fakeSender{err: errors.New("boom")}
	w := NewOptimisticWriter(store, sender, nil, dedupe.New(time.Minute, 16), nil)

	w.SetDraft("retry me")
	_, err := w.Submit(context.Background(), SourceText)
	require.Error(t, err)

	// Same content must be retryable after a failure.
	sender.err = nil
	w.SetDraft("retry me")
	_, err = w.Submit(context.Background(), SourceText)
	require.NoError(t, err)
	assert.Len(t, sender.calls, 2)
}

func TestSubmit_RefreshFailureIsNotASendFailure(t *testing.T) {
	store := NewMessageStore("conv-1")
	w := NewOptimisticWriter(store, &fakeSender{}, &fakeRefresher{err: errors.New("slow network")}, nil, nil)

	w.SetDraft("hi")
	_, err := w.Submit(context.Background(), SourceText)
	assert.NoError(t, err, "background refresh failure stays invisible")
	assert.Len(t, store.Snapshot(), 1, "optimistic append stands; next poll catches up")
}
