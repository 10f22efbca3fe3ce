package progress

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/workbook/internal/channel"
	"github.com/matheus3301/workbook/internal/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source feeds confirmed uploads for one owner into a Store.
type Source interface {
	Start(ctx context.Context, owner string, apply func(Upload)) error
	Stop()
}

// PushSource listens for photo:uploaded on the owner's relay topic.
type PushSource struct {
	client *channel.Client
	logger *zap.Logger

	mu  sync.Mutex
	sub *channel.Subscription
}

// NewPushSource creates a relay-backed source.
func NewPushSource(c *channel.Client, logger *zap.Logger) *PushSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushSource{client: c, logger: logger}
}

// Start implements Source.
func (p *PushSource) Start(_ context.Context, owner string, apply func(Upload)) error {
	p.Stop()

	sub := p.client.Subscribe(wire.ProgressTopic(owner))
	channel.BindJSON(sub, wire.EventPhotoUploaded, p.logger, func(evt wire.PhotoUploaded) {
		apply(Upload{CheckpointID: evt.PageNumber, AssetURL: evt.ImageURL})
	})

	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	return nil
}

// Stop implements Source.
func (p *PushSource) Stop() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	p.client.Unsubscribe(sub)
}

// PollSource re-fetches every checkpoint on a fixed interval. It is the
// fallback when no relay is configured.
type PollSource struct {
	fetcher     Fetcher
	checkpoints []int
	interval    time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollSource creates a polling source.
func NewPollSource(f Fetcher, checkpoints []int, interval time.Duration, logger *zap.Logger) *PollSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PollSource{
		fetcher:     f,
		checkpoints: checkpoints,
		interval:    interval,
		logger:      logger,
	}
}

// Start implements Source.
func (p *PollSource) Start(ctx context.Context, owner string, apply func(Upload)) error {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, u := range p.poll(ctx, owner) {
					apply(u)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (p *PollSource) poll(ctx context.Context, owner string) []Upload {
	var (
		mu    sync.Mutex
		found []Upload
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, page := range p.checkpoints {
		g.Go(func() error {
			st, err := p.fetcher.CheckpointStatus(ctx, owner, page)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Debug("checkpoint poll failed", zap.Int("page", page), zap.Error(err))
				}
				return nil
			}
			if st.Uploaded {
				mu.Lock()
				found = append(found, Upload{CheckpointID: page, AssetURL: st.ImageURL})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return found
}

// Stop implements Source.
func (p *PollSource) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
