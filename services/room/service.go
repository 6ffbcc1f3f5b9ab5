package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/eljojo/civic/runtime"
	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is how often the room is polled.
const DefaultInterval = 5 * time.Minute

// Dialer opens RPC connections to a room.
type Dialer interface {
	Dial(ctx context.Context, addr types.Address) (Conn, error)
}

// Conn is one RPC session with the room.
type Conn interface {
	Metadata(ctx context.Context) (name string, err error)
	Members(ctx context.Context) (MemberStream, error)
	ListAliases(ctx context.Context, id types.FeedID) ([]string, error)
	Close() error
}

// MemberStream yields batches of member ids until ok is false.
type MemberStream interface {
	Next(ctx context.Context) (batch []types.FeedID, ok bool, err error)
}

// Follower lets the cache follow members it doesn't follow yet. Follows
// are private: they don't show up in anyone's public graph.
type Follower interface {
	IsFollowing(ctx context.Context, dst types.FeedID) (bool, error)
	FollowPrivately(ctx context.Context, dst types.FeedID) error
}

// NoticeSource fetches the room's notices.
type NoticeSource interface {
	Notices(ctx context.Context) (Notices, error)
}

// Config configures the Service.
type Config struct {
	Address     types.Address
	Interval    time.Duration // DefaultInterval when zero
	MaxParallel int           // member enrichment fan-out
	Dialer      Dialer
	Follower    Follower     // optional
	Notices     NoticeSource // optional
	Clock       Clock        // real time when nil
	Metrics     *Metrics     // optional
}

// Service keeps a fresh snapshot of a remote room's membership.
//
// It polls on a fixed interval (no backoff), reconciles what it fetched
// with the previous snapshot and publishes the result with one atomic swap.
// Any failure leaves the previous data in place.
type Service struct {
	cfg   Config
	log   *runtime.ServiceLog
	state atomic.Pointer[State]
	phase atomic.Int32

	hooksMu sync.RWMutex
	hooks   []func(*State)

	refreshMu sync.Mutex // one cycle at a time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a room service. It holds an empty snapshot until the
// first refresh completes.
func NewService(cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = utilities.DefaultMaxParallel
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	s := &Service{
		cfg: cfg,
		log: runtime.NewServiceLog("room", nil),
	}
	s.state.Store(NewState(cfg.Address))
	return s
}

// === Service interface ===

func (s *Service) Name() string {
	return "room"
}

func (s *Service) Init(rt runtime.RuntimeInterface) error {
	if s.cfg.Dialer == nil {
		return errors.New("room dialer is required")
	}
	if err := s.cfg.Address.Validate(); err != nil {
		return err
	}
	s.log = rt.Log("room")
	s.ctx, s.cancel = context.WithCancel(rt.Context())
	return nil
}

// Start refreshes once right away, then on every tick.
func (s *Service) Start() error {
	if s.ctx == nil {
		return errors.New("room service not initialized")
	}
	ticks, stop := s.cfg.Clock.Ticker(s.cfg.Interval)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		defer stop()

		s.Refresh(s.ctx)
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticks:
				s.Refresh(s.ctx)
			}
		}
	}()

	s.log.Info("🏠 polling %s every %s", s.cfg.Address, s.cfg.Interval)
	return nil
}

func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}

// === Reads ===

// Snapshot returns the current state. Never nil; callers must not mutate it.
func (s *Service) Snapshot() *State {
	return s.state.Load()
}

// Phase returns where the refresh cycle is right now.
func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

// OnRefresh registers a hook called with every published snapshot.
func (s *Service) OnRefresh(hook func(*State)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// === Refresh cycle ===

// Refresh runs one full cycle: connect, fetch, reconcile, publish.
func (s *Service) Refresh(ctx context.Context) *State {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	defer s.setPhase(PhaseIdle)

	started := s.cfg.Clock.Now()
	prev := s.Snapshot()
	fetched := s.fetch(ctx, prev)

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.Tracef("room fetched %s", spew.Sdump(fetched))
	}

	s.setPhase(PhaseReconciling)
	next := Reconcile(prev, fetched)
	s.state.Store(next)

	outcome := "ok"
	switch {
	case fetched.ConnectErr != nil:
		outcome = "unreachable"
		s.log.Warn("🏚️ can't reach room, serving stale data: %v", fetched.ConnectErr)
	case next.LastError != "":
		outcome = "partial"
		s.log.Warn("🏚️ room refresh incomplete: %s", next.LastError)
	default:
		s.log.Debug("🏠 room %q refreshed, %d members", next.Name, len(next.Members))
	}
	s.cfg.Metrics.observe(outcome, s.cfg.Clock.Now().Sub(started).Seconds(), len(next.Members))

	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(next)
	}
	return next
}

func (s *Service) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

func (s *Service) fetch(ctx context.Context, prev *State) Fetched {
	f := Fetched{At: s.cfg.Clock.Now()}

	var g errgroup.Group
	// notices come over HTTP, independent of the RPC connection
	g.Go(func() error {
		if s.cfg.Notices == nil {
			f.Notices = prev.Notices
			return nil
		}
		f.Notices, f.NoticesErr = s.cfg.Notices.Notices(ctx)
		return nil
	})

	s.setPhase(PhaseConnecting)
	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Address)
	if err != nil {
		f.ConnectErr = fmt.Errorf("connect: %w", err)
		_ = g.Wait()
		return f
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Debug("closing room connection: %v", err)
		}
	}()

	s.setPhase(PhaseFetching)
	g.Go(func() error {
		name, err := conn.Metadata(ctx)
		if err != nil {
			f.MetadataErr = fmt.Errorf("metadata: %w", err)
			return nil
		}
		f.Name = name
		return nil
	})
	g.Go(func() error {
		ids, err := drainMembers(ctx, conn)
		if err != nil {
			f.MembersErr = fmt.Errorf("members: %w", err)
		}
		f.Members = s.enrich(ctx, conn, ids)
		return nil
	})
	_ = g.Wait() // goroutines record their own errors in f

	return f
}

func drainMembers(ctx context.Context, conn Conn) ([]types.FeedID, error) {
	stream, err := conn.Members(ctx)
	if err != nil {
		return nil, err
	}
	var ids []types.FeedID
	seen := make(map[types.FeedID]bool)
	for {
		batch, ok, err := stream.Next(ctx)
		if err != nil {
			return ids, err
		}
		if !ok {
			return ids, nil
		}
		for _, id := range batch {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
}

// enrich follows new members and lists their aliases, a few at a time.
// A member whose enrichment fails is still kept.
func (s *Service) enrich(ctx context.Context, conn Conn, ids []types.FeedID) []FetchedMember {
	report := utilities.MapConcurrent(ctx, ids, s.cfg.MaxParallel, func(ctx context.Context, id types.FeedID) (FetchedMember, error) {
		s.followIfNeeded(ctx, id)

		m := FetchedMember{ID: id}
		m.Aliases, m.AliasErr = conn.ListAliases(ctx, id)
		if m.AliasErr != nil {
			s.log.Warn("listing aliases of %s: %v", id, m.AliasErr)
		}
		return m, nil
	})

	members := report.Results
	for _, failure := range report.Failed {
		// only cancellation gets here; keep the member without aliases
		members[failure.Index] = FetchedMember{ID: ids[failure.Index], AliasErr: failure.Err}
	}
	return members
}

func (s *Service) followIfNeeded(ctx context.Context, id types.FeedID) {
	if s.cfg.Follower == nil {
		return
	}
	following, err := s.cfg.Follower.IsFollowing(ctx, id)
	if err != nil {
		s.log.Warn("checking follow of %s: %v", id, err)
		return
	}
	if following {
		return
	}
	if err := s.cfg.Follower.FollowPrivately(ctx, id); err != nil {
		s.log.Warn("following %s: %v", id, err)
		return
	}
	s.cfg.Metrics.follows.Inc()
	s.log.Info("🤝 privately followed new member %s", id)
}
