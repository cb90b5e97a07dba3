// Package bot drives a headless client that plays a family: it claims a
// free lot, then keeps walking its members around and using objects.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/world"
	"github.com/zeusync/homestead/sdk/go/client"
)

var (
	ErrNoFreeLot = errors.New("no free lot")
	ErrRejected  = errors.New("intent rejected")
)

type Config struct {
	Name    string        `yaml:"name" env:"NAME"`
	Members int           `yaml:"members" env:"MEMBERS"`
	Every   time.Duration `yaml:"every" env:"EVERY"`
	// UseChance is the share of actions that use an object instead of
	// walking.
	UseChance float64 `yaml:"use_chance" env:"USE_CHANCE"`
	Seed      uint64  `yaml:"seed" env:"SEED"`
}

func DefaultConfig() Config {
	return Config{
		Name:      "Bot",
		Members:   2,
		Every:     500 * time.Millisecond,
		UseChance: 0.3,
	}
}

type Bot struct {
	client  *client.Client
	config  Config
	logger  log.Log
	rng     *rand.Rand
	limiter *rate.Limiter

	lot geom.Polygon
}

func New(c *client.Client, config Config, logger log.Log) *Bot {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Bot{
		client:  c,
		config:  config,
		logger:  logger.With(log.String("component", "bot"), log.String("name", config.Name)),
		rng:     rand.New(rand.NewPCG(seed, seed>>1)),
		limiter: rate.NewLimiter(rate.Every(config.Every), 1),
	}
}

// Setup creates the family of the bot on a free lot unless the session
// already has one.
func (b *Bot) Setup(ctx context.Context) error {
	if b.client.Family() != world.City {
		b.lot = b.familyLot(b.client.Family())
		return nil
	}
	mirror := b.client.Mirror()
	var (
		lotID world.NetID
		lot   replication.LotState
	)
	for _, id := range mirror.Entities(replication.KindLot) {
		state, ok, err := replication.Get[replication.LotState](mirror, id, replication.ComponentLot)
		if err != nil {
			return err
		}
		if ok && state.Owner == world.City {
			lotID, lot = id, state
			break
		}
	}
	if lotID == world.City {
		return ErrNoFreeLot
	}

	center := lot.Polygon.Bounds().Center()
	intent := replication.Intent{Kind: replication.IntentCreateFamily, Name: b.config.Name, Lot: lotID}
	for i := range max(b.config.Members, 1) {
		intent.Members = append(intent.Members, replication.Member{
			Name:     fmt.Sprintf("%s %d", b.config.Name, i+1),
			Position: center.Add(geom.V(float64(i), 0)),
		})
	}
	r, err := b.client.Do(ctx, intent)
	if err != nil {
		return err
	}
	if !r.Accepted {
		return fmt.Errorf("%w: create_family: %s", ErrRejected, r.Reason)
	}
	b.lot = lot.Polygon
	b.logger.Info("Family created", log.Stringer("family", r.Entity), log.Stringer("lot", lotID))
	return nil
}

func (b *Bot) familyLot(family world.NetID) geom.Polygon {
	mirror := b.client.Mirror()
	for _, id := range mirror.Entities(replication.KindLot) {
		state, ok, err := replication.Get[replication.LotState](mirror, id, replication.ComponentLot)
		if err == nil && ok && state.Owner == family {
			return state.Polygon
		}
	}
	return nil
}

// Members lists the actors of the bot family as the mirror knows them.
func (b *Bot) Members() []world.NetID {
	state, ok, err := replication.Get[replication.FamilyState](b.client.Mirror(), b.client.Family(), replication.ComponentFamily)
	if err != nil || !ok {
		return nil
	}
	return state.Members
}

// Act sends one action for a random member and waits for its result.
func (b *Bot) Act(ctx context.Context) (replication.IntentResult, error) {
	members := b.Members()
	if len(members) == 0 {
		return replication.IntentResult{}, fmt.Errorf("%w: family has no members", ErrRejected)
	}
	actor := members[b.rng.IntN(len(members))]
	intent := replication.Intent{Family: b.client.Family(), Actor: actor}

	objects := b.client.Mirror().Entities(replication.KindObject)
	if len(objects) > 0 && b.rng.Float64() < b.config.UseChance {
		intent.Kind = replication.IntentInteract
		intent.Target = objects[b.rng.IntN(len(objects))]
	} else {
		intent.Kind = replication.IntentMoveActor
		intent.Position = b.somewhere()
	}
	return b.client.Do(ctx, intent)
}

func (b *Bot) somewhere() geom.Vec2 {
	if len(b.lot) == 0 {
		return geom.V(0, 0)
	}
	r := b.lot.Bounds()
	for range 8 {
		p := geom.V(
			r.Min.X()+b.rng.Float64()*(r.Max.X()-r.Min.X()),
			r.Min.Y()+b.rng.Float64()*(r.Max.Y()-r.Min.Y()),
		)
		if b.lot.Contains(p) {
			return p
		}
	}
	return r.Center()
}

// Run sets the bot up and acts until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Setup(ctx); err != nil {
		return err
	}
	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
		r, err := b.Act(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, client.ErrNotConnected):
			b.logger.Debug("Waiting for connection")
		case err != nil:
			b.logger.Warn("Action failed", log.Error(err))
		case !r.Accepted:
			b.logger.Debug("Action rejected", log.String("reason", r.Reason))
		}
	}
}
