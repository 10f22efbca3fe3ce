// Package progress tracks which checkpoint pages a learner has completed by
// uploading the required photo.
package progress

import (
	"context"
	"slices"
	"sync"

	"github.com/matheus3301/workbook/internal/scope"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds checkpoint requests during Initialize.
const maxConcurrentFetches = 4

// Fetcher reads one checkpoint's upload status from the backend.
type Fetcher interface {
	CheckpointStatus(ctx context.Context, owner string, page int) (*wire.CheckpointStatus, error)
}

// Upload is a confirmed checkpoint photo.
type Upload struct {
	CheckpointID int
	AssetURL     string
}

// Options configures a Store.
type Options struct {
	Checkpoints []int
	// Gating makes Blocks report incomplete checkpoints. Tracking happens
	// regardless.
	Gating bool
	Logger *zap.Logger
}

// Store holds the completed checkpoint set for one learner. Within one
// Initialize epoch the set only grows.
type Store struct {
	fetcher     Fetcher
	checkpoints []int
	gating      bool
	logger      *zap.Logger

	mu        sync.Mutex
	guard     scope.Guard
	token     scope.Token
	owner     string
	completed map[int]string
	source    Source
	listeners []func()
}

// NewStore creates an empty store.
func NewStore(f Fetcher, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cps := slices.Clone(opts.Checkpoints)
	slices.Sort(cps)
	return &Store{
		fetcher:     f,
		checkpoints: slices.Compact(cps),
		gating:      opts.Gating,
		logger:      logger.Named("progress"),
		completed:   make(map[int]string),
	}
}

// Initialize resets the store for owner and fetches every checkpoint
// concurrently. Failed fetches count as not completed. If another
// Initialize or Close happens meanwhile, the results are discarded.
func (s *Store) Initialize(ctx context.Context, owner string) []int {
	s.mu.Lock()
	tok := s.guard.Begin(owner)
	s.token = tok
	s.owner = owner
	clear(s.completed)
	s.mu.Unlock()
	s.notify()

	var (
		mu    sync.Mutex
		found = make(map[int]string)
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, page := range s.checkpoints {
		g.Go(func() error {
			st, err := s.fetcher.CheckpointStatus(ctx, owner, page)
			if err != nil {
				s.logger.Warn("checkpoint fetch failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			if st.Uploaded {
				mu.Lock()
				found[page] = st.ImageURL
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	if !tok.Current() {
		s.mu.Unlock()
		s.logger.Debug("discarding stale initialization", zap.String("owner", owner))
		return nil
	}
	for page, url := range found {
		s.add(page, url)
	}
	s.mu.Unlock()
	s.notify()
	return s.Completed()
}

// ApplyRemoteEvent records an upload pushed by the relay or found by
// polling. Applying the same upload twice is a no-op.
func (s *Store) ApplyRemoteEvent(u Upload) bool {
	s.mu.Lock()
	added := s.add(u.CheckpointID, u.AssetURL)
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return added
}

// MarkCompletedLocally records a checkpoint right after its upload succeeded.
func (s *Store) MarkCompletedLocally(page int) bool {
	return s.ApplyRemoteEvent(Upload{CheckpointID: page})
}

// applyFor is ApplyRemoteEvent guarded by the epoch the caller started in.
func (s *Store) applyFor(tok scope.Token, u Upload) {
	s.mu.Lock()
	if !tok.Current() {
		s.mu.Unlock()
		return
	}
	added := s.add(u.CheckpointID, u.AssetURL)
	s.mu.Unlock()
	if added {
		s.notify()
	}
}

// add must be called with s.mu held.
func (s *Store) add(page int, url string) bool {
	if existing, ok := s.completed[page]; ok {
		if existing == "" && url != "" {
			s.completed[page] = url
		}
		return false
	}
	s.completed[page] = url
	return true
}

// Watch starts src for the current owner, replacing any previous source.
// Updates from a source started in an earlier epoch are ignored.
func (s *Store) Watch(ctx context.Context, src Source) error {
	s.mu.Lock()
	prev := s.source
	s.source = src
	tok, owner := s.token, s.owner
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return src.Start(ctx, owner, func(u Upload) { s.applyFor(tok, u) })
}

// Close stops the active source and invalidates in-flight work.
func (s *Store) Close() {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.guard.End()
	s.mu.Unlock()
	if src != nil {
		src.Stop()
	}
}

// Owner returns the learner the store was last initialized for.
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Checkpoints returns the tracked checkpoint pages in ascending order.
func (s *Store) Checkpoints() []int {
	return slices.Clone(s.checkpoints)
}

// Completed returns the completed checkpoints in ascending order.
func (s *Store) Completed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.completed))
	for page := range s.completed {
		out = append(out, page)
	}
	slices.Sort(out)
	return out
}

// Has reports whether page is completed.
func (s *Store) Has(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[page]
	return ok
}

// AssetURL returns the uploaded photo for page, if known.
func (s *Store) AssetURL(page int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[page]
}

// NextPending returns the first checkpoint without an upload.
func (s *Store) NextPending() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range s.checkpoints {
		if _, ok := s.completed[page]; !ok {
			return page, true
		}
	}
	return 0, false
}

// Blocks reports whether page stops the learner from advancing.
func (s *Store) Blocks(page int) bool {
	if !s.gating || !slices.Contains(s.checkpoints, page) {
		return false
	}
	return !s.Has(page)
}

// OnChange registers fn to run after the completed set changes. fn runs on
// the goroutine that made the change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
