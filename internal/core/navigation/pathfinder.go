package navigation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/observability/log"
)

// MeshSource yields the latest published mesh.
type MeshSource interface {
	Mesh() *Mesh
}

// Token ties a path result to the request that produced it. A result is
// only applied when its Goal still matches the agent's current goal.
type Token struct {
	Agent uuid.UUID
	Goal  uint64
}

type Request struct {
	Token
	From geom.Vec2
	To   geom.Vec2
}

type Result struct {
	Token
	Path []geom.Vec2
	// Version is the mesh version the path was computed against.
	Version uint64
	Err     error
}

type PathfinderConfig struct {
	Workers   int `yaml:"workers" env:"WORKERS"`
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

func DefaultPathfinderConfig() PathfinderConfig {
	return PathfinderConfig{Workers: 2, QueueSize: 256}
}

type job struct {
	req Request
	ctx context.Context
}

// Pathfinder computes paths on background workers against the latest
// published mesh. Results are collected with Drain on the simulation tick.
type Pathfinder struct {
	source  MeshSource
	config  PathfinderConfig
	logger  log.Log
	jobs    chan job
	running atomic.Int32

	mu       sync.Mutex
	pending  map[uuid.UUID]context.CancelFunc
	results  []Result
	inflight sync.WaitGroup
}

func NewPathfinder(source MeshSource, config PathfinderConfig, logger log.Log) *Pathfinder {
	return &Pathfinder{
		source:  source,
		config:  config,
		logger:  logger.With(log.String("component", "pathfinder")),
		jobs:    make(chan job, config.QueueSize),
		pending: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run starts the workers and blocks until ctx is done.
func (p *Pathfinder) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(0, 1) {
		return nil
	}
	defer p.running.Store(0)

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < max(1, p.config.Workers); i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case j := <-p.jobs:
					p.solve(j)
				}
			}
		})
	}
	p.logger.Info("Pathfinder started", log.Int("workers", p.config.Workers))
	err := group.Wait()
	p.logger.Info("Pathfinder stopped")
	return err
}

// Request queues a path computation. A previous request for the same agent
// is cancelled once the new one is queued; a full queue leaves it running.
func (p *Pathfinder) Request(req Request) error {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight.Add(1)
	select {
	case p.jobs <- job{req: req, ctx: ctx}:
	default:
		p.inflight.Done()
		cancel()
		return ErrQueueFull
	}
	if prev, ok := p.pending[req.Agent]; ok {
		prev()
	}
	p.pending[req.Agent] = cancel
	return nil
}

// Cancel drops any in-flight request of the agent.
func (p *Pathfinder) Cancel(agent uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.pending[agent]; ok {
		cancel()
		delete(p.pending, agent)
	}
}

// Drain returns the results completed since the last call.
func (p *Pathfinder) Drain() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.results
	p.results = nil
	return out
}

// Wait blocks until every queued request has been processed. Workers must
// be running.
func (p *Pathfinder) Wait() { p.inflight.Wait() }

// Solve computes a path synchronously on the caller's goroutine.
func (p *Pathfinder) Solve(ctx context.Context, req Request) Result {
	mesh := p.source.Mesh()
	path, err := mesh.FindPath(ctx, req.From, req.To)
	return Result{Token: req.Token, Path: path, Version: mesh.Version(), Err: err}
}

func (p *Pathfinder) solve(j job) {
	defer p.inflight.Done()
	if j.ctx.Err() != nil {
		return
	}

	res := p.Solve(j.ctx, j.req)
	if j.ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if j.ctx.Err() != nil {
		return
	}
	if cancel, ok := p.pending[j.req.Agent]; ok {
		cancel()
		delete(p.pending, j.req.Agent)
	}
	p.results = append(p.results, res)
}
