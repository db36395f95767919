package responder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"teleautogram/internal/config"
	"teleautogram/internal/llm"
	"teleautogram/internal/notify"
	"teleautogram/internal/storage"
	"teleautogram/internal/transport"
)

// ConfigSource yields a fresh tunables snapshot per message so console edits
// apply without a restart.
type ConfigSource interface {
	Snapshot() config.Snapshot
}

// Orchestrator turns inbound private messages into debounced auto-replies.
// Handling splits in two: Phase A (store, delayed read-ack, one-time history
// backfill) always completes; Phase B (generate, wait, send, record) is a
// per-sender task that a newer message supersedes, so a burst collapses into
// a single reply drafted from the whole burst.
//
// Each sender has a serial work queue that runs its Phase A jobs in arrival
// order, so HandleIncoming returns immediately and a slow backfill suspends
// only that sender's conversation, never the caller's dispatch loop or other
// senders.
type Orchestrator struct {
	store    *storage.Store
	tr       transport.Transport
	backend  llm.Backend
	cfg      ConfigSource
	persona  func() string
	notifier *notify.Notifier
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	queues  map[int64]*workQueue
	pending map[int64]*task
}

// workQueue is one sender's serial job queue. idle closes when the drain
// goroutine exits.
type workQueue struct {
	jobs []func()
	idle chan struct{}
}

// task is one in-flight Phase B computation. At most one live, uncancelled
// task exists per sender.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Orchestrator)

// WithSleep replaces the delay primitive, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithNotifier enables the received-message webhook.
func WithNotifier(n *notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func New(store *storage.Store, tr transport.Transport, backend llm.Backend, cfg ConfigSource, persona func() string, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if persona == nil {
		persona = func() string { return "" }
	}
	o := &Orchestrator{
		store:   store,
		tr:      tr,
		backend: backend,
		cfg:     cfg,
		persona: persona,
		logger:  logger,
		sleep:   sleepCtx,
		queues:  make(map[int64]*workQueue),
		pending: make(map[int64]*task),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomDelay(r config.DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min)+1))
}

// HandleIncoming accepts a message and returns immediately: Phase A and the
// Phase B handoff run on the sender's serial queue. Per-sender ordering
// holds: Phase A of a message always completes before that message's
// Phase B starts, and before the next message's Phase A runs.
func (o *Orchestrator) HandleIncoming(ctx context.Context, in transport.Incoming) {
	if !accepted(in) {
		return
	}
	name := senderName(in)
	o.enqueue(in.SenderID, func() { o.process(ctx, in, name) })
}

// RecordIncoming persists a message without answering it. The dispatch loop
// uses it while the login handshake is still collecting operator input, so a
// long wait never loses inbound history.
func (o *Orchestrator) RecordIncoming(ctx context.Context, in transport.Incoming) {
	if !accepted(in) {
		return
	}
	name := senderName(in)
	o.enqueue(in.SenderID, func() {
		if _, err := o.store.Append(storage.DirectionReceived, name, in.Text, llm.Summarize(in.Text), in.SenderID); err != nil {
			o.logger.Error("storing inbound message failed",
				zap.Int64("sender", in.SenderID), zap.Error(err))
		}
	})
}

func accepted(in transport.Incoming) bool {
	return in.Private && strings.TrimSpace(in.Text) != ""
}

func senderName(in transport.Incoming) string {
	if in.SenderName != "" {
		return in.SenderName
	}
	return strconv.FormatInt(in.SenderID, 10)
}

// process is Phase A plus the Phase B handoff; it runs on the sender's queue.
func (o *Orchestrator) process(ctx context.Context, in transport.Incoming, name string) {
	snap := o.cfg.Snapshot()
	summary := llm.Summarize(in.Text)

	// A storage failure here loses a log entry, not the reply.
	if _, err := o.store.Append(storage.DirectionReceived, name, in.Text, summary, in.SenderID); err != nil {
		o.logger.Error("storing inbound message failed",
			zap.Int64("sender", in.SenderID), zap.Error(err))
	}

	if o.notifier != nil && snap.NotifyAPIURL != "" {
		go o.notifier.MessageReceived(ctx, snap.NotifyAPIURL, name, summary)
	}

	go o.delayedReadAck(ctx, in, snap.ReadAckDelay)

	if in.SenderID != 0 && !o.store.IsHistorySynced(in.SenderID) {
		o.backfillHistory(ctx, in.SenderID, name, snap)
	}

	o.startResponse(ctx, in, name)
}

// enqueue appends job to the sender's serial queue, starting a drain
// goroutine if none is running.
func (o *Orchestrator) enqueue(senderID int64, job func()) {
	o.mu.Lock()
	q := o.queues[senderID]
	if q == nil {
		q = &workQueue{idle: make(chan struct{})}
		o.queues[senderID] = q
		go o.drain(senderID, q)
	}
	q.jobs = append(q.jobs, job)
	o.mu.Unlock()
}

func (o *Orchestrator) drain(senderID int64, q *workQueue) {
	for {
		o.mu.Lock()
		if len(q.jobs) == 0 {
			delete(o.queues, senderID)
			o.mu.Unlock()
			close(q.idle)
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		o.mu.Unlock()
		job()
	}
}

// delayedReadAck marks the message read after a humanlike pause. Fire and
// forget: failures never reach Phase B.
func (o *Orchestrator) delayedReadAck(ctx context.Context, in transport.Incoming, r config.DelayRange) {
	if err := o.sleep(ctx, randomDelay(r)); err != nil {
		return
	}
	if err := o.tr.AcknowledgeRead(ctx, in.ChatID, in.MessageID); err != nil {
		o.logger.Warn("read acknowledgement failed",
			zap.Int64("chat", in.ChatID), zap.Error(err))
	}
}

// backfillHistory imports a bounded window of prior platform messages once
// per sender. The full-history profile build runs before the marker is set,
// so a crash mid-build retries on the next message instead of silently
// losing the build.
func (o *Orchestrator) backfillHistory(ctx context.Context, senderID int64, name string, snap config.Snapshot) {
	fetched, err := o.tr.FetchHistory(ctx, senderID, snap.HistoryFetchLimit, 0)
	if err != nil {
		o.logger.Warn("history backfill failed",
			zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	if len(fetched) > 0 {
		batch := make([]storage.Message, 0, len(fetched))
		for _, m := range fetched {
			msg := storage.Message{
				Timestamp: m.Timestamp,
				Direction: storage.DirectionReceived,
				Sender:    name,
				Text:      m.Text,
				SenderID:  senderID,
			}
			if m.Outgoing {
				msg.Direction = storage.DirectionSent
				msg.Sender = "Me"
			}
			batch = append(batch, msg)
		}
		if err := o.store.ImportBatch(senderID, batch); err != nil {
			o.logger.Warn("history import failed",
				zap.Int64("sender", senderID), zap.Error(err))
			return
		}
		o.buildFullProfile(ctx, senderID, name)
	}
	if err := o.store.MarkHistorySynced(senderID); err != nil {
		o.logger.Warn("marking history sync failed",
			zap.Int64("sender", senderID), zap.Error(err))
	}
}

func (o *Orchestrator) buildFullProfile(ctx context.Context, senderID int64, name string) {
	profile, err := o.store.LoadProfile(senderID)
	if err != nil {
		o.logger.Warn("loading profile failed", zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	history, err := o.store.Recent(senderID, 0)
	if err != nil {
		o.logger.Warn("loading history failed", zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	updated, err := o.backend.UpdateProfile(ctx, llm.ProfileRequest{
		Existing:    profile,
		History:     history,
		SenderName:  name,
		FullHistory: true,
	})
	if err != nil {
		o.logger.Warn("full-history profile build failed",
			zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	if updated != profile {
		if err := o.store.SaveProfile(senderID, updated); err != nil {
			o.logger.Warn("saving profile failed", zap.Int64("sender", senderID), zap.Error(err))
		}
	}
}

// startResponse supersedes any pending Phase B for the sender and registers
// a fresh task.
func (o *Orchestrator) startResponse(ctx context.Context, in transport.Incoming, name string) {
	tctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if prev := o.pending[in.SenderID]; prev != nil {
		prev.cancel()
	}
	o.pending[in.SenderID] = t
	o.mu.Unlock()

	go func() {
		defer close(t.done)
		defer o.finish(in.SenderID, t)
		if err := o.respond(tctx, in, name); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("auto-response failed",
				zap.Int64("sender", in.SenderID), zap.Error(err))
		}
	}()
}

// finish deregisters t only while it is still the sender's registered task:
// a superseded task must not remove its successor's registration.
func (o *Orchestrator) finish(senderID int64, t *task) {
	o.mu.Lock()
	if o.pending[senderID] == t {
		delete(o.pending, senderID)
	}
	o.mu.Unlock()
	t.cancel()
}

// respond is Phase B: draft a reply from everything accumulated so far,
// wait out the humanlike delay, send, record, and maybe update the profile.
func (o *Orchestrator) respond(ctx context.Context, in transport.Incoming, name string) error {
	snap := o.cfg.Snapshot()

	history, err := o.store.Recent(in.SenderID, snap.HistoryLookback)
	if err != nil {
		o.logger.Warn("loading history failed", zap.Int64("sender", in.SenderID), zap.Error(err))
	}
	profile, err := o.store.LoadProfile(in.SenderID)
	if err != nil {
		o.logger.Warn("loading profile failed", zap.Int64("sender", in.SenderID), zap.Error(err))
	}

	reply, err := o.backend.Respond(ctx, llm.RespondRequest{
		History:    history,
		Persona:    o.persona(),
		Profile:    profile,
		SenderName: name,
		Incoming:   in.Text,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		o.logger.Warn("responder unavailable, using fallback",
			zap.Int64("sender", in.SenderID), zap.Error(err))
	}
	if strings.TrimSpace(reply) == "" {
		reply = snap.AutoResponseMessage
	}

	// Cancellation point: superseded here means nothing sent or recorded.
	if err := o.sleep(ctx, randomDelay(snap.ResponseDelay)); err != nil {
		return err
	}

	// Committed. From here the send and its record must both happen, even
	// if the task is cancelled mid-flight: a reply is never delivered
	// without a matching local record, nor vice versa.
	sctx := context.WithoutCancel(ctx)
	peer := in.ChatID
	if peer == 0 {
		peer = in.SenderID
	}
	if err := o.tr.SendMessage(sctx, peer, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if _, err := o.store.Append(storage.DirectionSent, "Me", reply, "", in.SenderID); err != nil {
		o.logger.Error("recording sent reply failed",
			zap.Int64("sender", in.SenderID), zap.Error(err))
	}

	o.maybeUpdateProfile(sctx, in.SenderID, name, history)
	return nil
}

// maybeUpdateProfile runs the updater when the latest unanswered burst (the
// received messages newer than the most recent sent record) contains
// anything non-trivial.
func (o *Orchestrator) maybeUpdateProfile(ctx context.Context, senderID int64, name string, history []storage.Message) {
	trigger := false
	for _, m := range latestBurst(history) {
		if !isTrivial(m.Text) {
			trigger = true
			break
		}
	}
	if !trigger {
		return
	}

	profile, err := o.store.LoadProfile(senderID)
	if err != nil {
		o.logger.Warn("loading profile failed", zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	// Reload so the context includes the reply just sent.
	full, err := o.store.Recent(senderID, 0)
	if err != nil {
		o.logger.Warn("loading history failed", zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	updated, err := o.backend.UpdateProfile(ctx, llm.ProfileRequest{
		Existing:   profile,
		History:    full,
		SenderName: name,
	})
	if err != nil {
		o.logger.Warn("profile update failed", zap.Int64("sender", senderID), zap.Error(err))
		return
	}
	if updated != profile {
		if err := o.store.SaveProfile(senderID, updated); err != nil {
			o.logger.Warn("saving profile failed", zap.Int64("sender", senderID), zap.Error(err))
		}
	}
}

// latestBurst returns the received messages after the last sent record.
func latestBurst(history []storage.Message) []storage.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == storage.DirectionSent {
			return history[i+1:]
		}
	}
	return history
}

// SendManual delivers an operator-authored message. A pending automated
// reply for the peer is cancelled first: a human reply pre-empts it.
func (o *Orchestrator) SendManual(ctx context.Context, peerID int64, text string) error {
	o.mu.Lock()
	if t := o.pending[peerID]; t != nil {
		t.cancel()
		delete(o.pending, peerID)
	}
	o.mu.Unlock()

	if err := o.tr.SendMessage(ctx, peerID, text); err != nil {
		return fmt.Errorf("send manual message: %w", err)
	}
	if _, err := o.store.Append(storage.DirectionSent, "Me", text, "", peerID); err != nil {
		return fmt.Errorf("record manual message: %w", err)
	}
	return nil
}

// Conversation returns one sender's recent messages, oldest first.
func (o *Orchestrator) Conversation(senderID int64, limit int) ([]storage.Message, error) {
	return o.store.Recent(senderID, limit)
}

// AllMessages returns every conversation merged and time-sorted.
func (o *Orchestrator) AllMessages() ([]storage.Message, error) {
	return o.store.LoadAll()
}

// PendingCount reports the number of live Phase B tasks.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Wait blocks until the sender's queued work and current task finish, for
// tests and shutdown draining.
func (o *Orchestrator) Wait(senderID int64) {
	for {
		o.mu.Lock()
		q := o.queues[senderID]
		t := o.pending[senderID]
		o.mu.Unlock()
		switch {
		case q != nil:
			<-q.idle
		case t != nil:
			<-t.done
		default:
			return
		}
	}
}
