// Package feed maintains the live token-creation feed: a reconnecting
// websocket subscription, a bounded newest-first history and asynchronous
// metadata enrichment of each entry.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tokenscope/internal/observability"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("feed manager already running")

// Enricher resolves a descriptor URI to a display image.
// It must not block forever; ok is false when no image is available.
type Enricher interface {
	Enrich(ctx context.Context, uri string) (image string, ok bool)
}

// Options configures a Manager.
type Options struct {
	Dialer   Dialer
	Enricher Enricher // optional
	Policy   Policy   // nil means DefaultPolicy
	Capacity int      // zero means DefaultCapacity
	Logger   *zap.Logger
	Now      func() time.Time
}

// View is an immutable snapshot of the feed for rendering.
type View struct {
	Status  Status
	Entries []Entry // newest first
}

// Manager owns the feed connection. A single dispatcher goroutine (Run)
// owns the status, buffer, socket and reconnect timer; socket readers and
// enrichment tasks hand their results back to it over inbox.
type Manager struct {
	dialer   Dialer
	enricher Enricher
	machine  Machine
	logger   *zap.Logger
	now      func() time.Time

	inbox   chan input
	updates chan struct{}
	view    atomic.Pointer[View]

	running   atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// dispatcher-owned
	status Status
	buffer *Buffer
	conn   Conn
	connID uint64
	timer  *time.Timer
	timerC <-chan time.Time
}

type input struct {
	control bool
	connID  uint64
	event   Event
	conn    Conn
	data    []byte
	enrich  *enrichResult
}

type enrichResult struct {
	mint       string
	generation uint64
	image      string
	ok         bool
}

// NewManager creates a feed manager. Call Run to connect.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		dialer:   opts.Dialer,
		enricher: opts.Enricher,
		machine:  Machine{Policy: opts.Policy},
		logger:   logger,
		now:      now,
		inbox:    make(chan input, 256),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		buffer:   NewBuffer(opts.Capacity),
	}
	m.view.Store(&View{})
	return m
}

// View returns the latest published snapshot. Safe for concurrent use.
func (m *Manager) View() View {
	return *m.view.Load()
}

// Updates signals after every published change. Signals coalesce.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// Reconnect requests a new connection attempt. It is a no-op unless the
// feed is disconnected or waiting to reconnect.
func (m *Manager) Reconnect() {
	select {
	case m.inbox <- input{control: true, event: Event{Kind: EventOpen}}:
	case <-m.done:
	case <-m.stopped:
	}
}

// Close tears the feed down and waits for Run to return.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	if m.running.Load() {
		<-m.stopped
	}
	return nil
}

// Run connects and dispatches feed events until ctx is cancelled or Close
// is called. Teardown always closes the socket with a normal closure and
// cancels any pending reconnect.
func (m *Manager) Run(parent context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.stopped)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	m.apply(ctx, Event{Kind: EventOpen}, nil)
	m.publish()

	for {
		select {
		case <-parent.Done():
			m.teardown(cancel)
			return parent.Err()
		case <-m.done:
			m.teardown(cancel)
			return nil
		case in := <-m.inbox:
			m.handle(ctx, in)
		case <-m.timerC:
			m.timer, m.timerC = nil, nil
			m.apply(ctx, Event{Kind: EventTimer}, nil)
		}
		m.publish()
	}
}

func (m *Manager) handle(ctx context.Context, in input) {
	if in.enrich != nil {
		m.applyEnrichment(in.enrich)
		return
	}
	if in.control {
		m.apply(ctx, in.event, nil)
		return
	}
	if in.connID != m.connID {
		// Stale socket: a newer attempt replaced it or teardown released it.
		if in.conn != nil {
			in.conn.Close(CloseNormal, closeReason)
		}
		return
	}

	switch in.event.Kind {
	case EventOpened:
		m.conn = in.conn
		m.logger.Info("feed connected")
	case EventError:
		m.logger.Warn("feed socket error", zap.Error(in.event.Err))
	case EventClosed:
		m.releaseConn(in.event.Code)
		m.logger.Info("feed socket closed", zap.Int("code", in.event.Code))
	}
	m.apply(ctx, in.event, in.data)
}

func (m *Manager) apply(ctx context.Context, ev Event, data []byte) {
	prev := m.status
	next, effects := m.machine.Step(m.status, ev)
	m.status = next

	if prev.State != next.State {
		m.logger.Debug("feed state transition",
			zap.Stringer("from", prev.State),
			zap.Stringer("to", next.State),
			zap.Int("attempt", next.Attempt),
		)
	}

	for _, eff := range effects {
		switch eff.Kind {
		case EffectOpenSocket:
			m.openSocket(ctx)
		case EffectCloseSocket:
			m.releaseConn(CloseNormal)
		case EffectScheduleRetry:
			m.scheduleRetry(eff.Delay)
		case EffectCancelRetry:
			m.cancelRetry()
		case EffectEnqueue:
			m.enqueue(ctx, data)
		}
	}
}

func (m *Manager) openSocket(ctx context.Context) {
	m.cancelRetry()
	if m.conn != nil {
		m.releaseConn(CloseNormal)
	}

	m.connID++
	id := m.connID

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			// Same sequence a browser reports: error, then abnormal close.
			m.post(ctx, input{connID: id, event: Event{Kind: EventError, Err: err}})
			m.post(ctx, input{connID: id, event: Event{Kind: EventClosed, Code: CloseAbnormal}})
			return
		}

		if !m.post(ctx, input{connID: id, event: Event{Kind: EventOpened}, conn: conn}) {
			conn.Close(CloseNormal, closeReason)
			return
		}

		m.readLoop(ctx, id, conn)
	}()
}

// readLoop delivers frames in arrival order until the socket fails.
func (m *Manager) readLoop(ctx context.Context, id uint64, conn Conn) {
	for {
		message, err := conn.ReadMessage()
		if err != nil {
			code, clean := closeCode(err)
			if !clean {
				m.post(ctx, input{connID: id, event: Event{Kind: EventError, Err: err}})
			}
			m.post(ctx, input{connID: id, event: Event{Kind: EventClosed, Code: code}})
			return
		}

		if !m.post(ctx, input{connID: id, event: Event{Kind: EventMessage}, data: message}) {
			return
		}
	}
}

func (m *Manager) enqueue(ctx context.Context, data []byte) {
	ev, err := ParseTokenEvent(data)
	if err != nil {
		m.logger.Warn("discarding malformed token event", zap.Error(err), zap.Int("bytes", len(data)))
		observability.RecordFeedParseError()
		return
	}

	gen := m.buffer.Push(ev, m.now())
	observability.RecordFeedMessage()
	m.logger.Debug("token received",
		zap.String("mint", ev.Mint),
		zap.String("symbol", ev.Symbol),
		zap.Uint64("generation", gen),
	)

	if m.enricher == nil || ev.URI == "" {
		return
	}

	m.wg.Add(1)
	go func(mint, uri string, gen uint64) {
		defer m.wg.Done()
		image, ok := m.enricher.Enrich(ctx, uri)
		m.post(ctx, input{enrich: &enrichResult{mint: mint, generation: gen, image: image, ok: ok}})
	}(ev.Mint, ev.URI, gen)
}

func (m *Manager) applyEnrichment(res *enrichResult) {
	switch {
	case !res.ok:
		observability.RecordEnrichment("absent")
	case m.buffer.ApplyImage(res.mint, res.generation, res.image):
		observability.RecordEnrichment("applied")
	default:
		observability.RecordEnrichment("stale")
		m.logger.Debug("dropping enrichment for evicted entry", zap.String("mint", res.mint))
	}
}

func (m *Manager) scheduleRetry(delay time.Duration) {
	m.cancelRetry()
	m.timer = time.NewTimer(delay)
	m.timerC = m.timer.C
	observability.RecordReconnectScheduled()
	m.logger.Info("feed reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", m.status.Attempt),
	)
}

func (m *Manager) cancelRetry() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer, m.timerC = nil, nil
}

func (m *Manager) releaseConn(code int) {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(code, closeReason); err != nil {
		m.logger.Debug("feed socket close", zap.Error(err))
	}
	m.conn = nil
}

// post hands a result to the dispatcher. Returns false once the feed is
// being torn down.
func (m *Manager) post(ctx context.Context, in input) bool {
	select {
	case m.inbox <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) teardown(cancel context.CancelFunc) {
	m.apply(context.Background(), Event{Kind: EventTeardown}, nil)
	// Invalidate any socket still being dialed.
	m.connID++
	cancel()

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()

	for {
		select {
		case in := <-m.inbox:
			m.discard(in)
		case <-waited:
			for {
				select {
				case in := <-m.inbox:
					m.discard(in)
				default:
					m.publish()
					m.logger.Info("feed closed")
					return
				}
			}
		}
	}
}

func (m *Manager) discard(in input) {
	if in.conn != nil {
		in.conn.Close(CloseNormal, closeReason)
	}
}

func (m *Manager) publish() {
	v := &View{
		Status:  m.status,
		Entries: m.buffer.Entries(),
	}
	m.view.Store(v)
	observability.UpdateFeedState(int(m.status.State), len(v.Entries))

	select {
	case m.updates <- struct{}{}:
	default:
	}
}
