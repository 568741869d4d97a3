// Package deck implements the capacity-constrained cargo store. A deck keeps
// its state in the shared backing store, so multiple writers (including other
// processes) may load cargo concurrently; the mass budget is enforced with an
// optimistic watch/commit protocol rather than locks.
package deck

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spacefleet/spaceship/internal/codec"
	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/kv"
	"github.com/spacefleet/spaceship/internal/model"
)

// ErrNoCapacity is a logical rejection: the object does not fit in the
// deck's remaining mass budget. Never retried, because retrying cannot
// change the answer.
var ErrNoCapacity = errors.New("deck: no capacity for object")

// ErrBusy is a transient failure: the commit kept losing optimistic races
// until the retry budget ran out. The caller may retry the whole Store call.
var ErrBusy = errors.New("deck: store contention, retries exhausted")

// ErrNotFound is returned by Get when no item has the requested name.
var ErrNotFound = errors.New("deck: item not found")

const (
	defaultRetries    = 3
	defaultRetryDelay = 100 * time.Millisecond
)

// Deck is a named capacity-constrained store of ship cargo.
type Deck struct {
	Name      string
	MaxMassKg float64

	store      kv.Store
	space      keys.Space
	registry   *codec.Registry
	logger     zerolog.Logger
	retries    int
	retryDelay time.Duration

	commits    metric.Int64Counter
	conflicts  metric.Int64Counter
	rejections metric.Int64Counter
}

// Option configures a Deck.
type Option func(*Deck)

// WithRetries sets how many optimistic conflicts Store absorbs before
// giving up with ErrBusy.
func WithRetries(n int) Option {
	return func(d *Deck) { d.retries = n }
}

// WithRetryDelay sets the fixed pause between conflict retries.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Deck) { d.retryDelay = delay }
}

// WithLogger sets the deck logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Deck) { d.logger = log }
}

// New creates a deck over the given store and key space.
func New(name string, maxMassKg float64, store kv.Store, space keys.Space, registry *codec.Registry, opts ...Option) *Deck {
	d := &Deck{
		Name:       name,
		MaxMassKg:  maxMassKg,
		store:      store,
		space:      space,
		registry:   registry,
		logger:     zerolog.Nop(),
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}

	m := meter()
	d.commits, _ = m.Int64Counter("deck.store.commits",
		metric.WithDescription("Successful deck store commits"))
	d.conflicts, _ = m.Int64Counter("deck.store.conflicts",
		metric.WithDescription("Optimistic commit conflicts during deck stores"))
	d.rejections, _ = m.Int64Counter("deck.store.rejections",
		metric.WithDescription("Deck stores rejected for lack of capacity"))

	return d
}

func (d *Deck) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("deck", d.Name))
}

// Store persists obj on the deck, enforcing the mass budget. The capacity
// check and the writes happen under a watch on the item index and the mass
// counter, so a concurrent commit to either invalidates this attempt and it
// retries from a fresh snapshot. All writes (item record, index entry, mass
// counter, child records) land in one atomic batch or not at all.
func (d *Deck) Store(ctx context.Context, obj *model.Object) error {
	if err := obj.Validate(); err != nil {
		return fmt.Errorf("%w: %v", codec.ErrInvalidObject, err)
	}

	itemsKey := d.space.DeckItems(d.Name)
	massKey := d.space.DeckStoredMass(d.Name)

	for attempt := 0; ; attempt++ {
		err := d.store.Watch(ctx, func(tx kv.Tx) error {
			stored, err := tx.GetFloat(massKey)
			if err != nil && !errors.Is(err, kv.ErrNotFound) {
				return err
			}
			if stored+obj.MassKg > d.MaxMassKg {
				return ErrNoCapacity
			}
			return tx.Commit(func(p kv.Pipeline) error {
				if err := d.queueObject(p, obj); err != nil {
					return err
				}
				p.ZAdd(itemsKey, obj.Name, obj.MassKg)
				p.IncrByFloat(massKey, obj.MassKg)
				return nil
			})
		}, itemsKey, massKey)

		switch {
		case err == nil:
			d.commits.Add(ctx, 1, d.attrs())
			d.logger.Debug().Str("deck", d.Name).Str("object", obj.Name).
				Float64("massKg", obj.MassKg).Msg("Stored object")
			return nil
		case errors.Is(err, ErrNoCapacity):
			d.rejections.Add(ctx, 1, d.attrs())
			return ErrNoCapacity
		case errors.Is(err, kv.ErrTxFailed):
			d.conflicts.Add(ctx, 1, d.attrs())
			if attempt >= d.retries {
				d.logger.Warn().Str("deck", d.Name).Str("object", obj.Name).
					Int("attempts", attempt+1).Msg("Store retries exhausted")
				return ErrBusy
			}
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return fmt.Errorf("storing %q on deck %s: %w", obj.Name, d.Name, err)
		}
	}
}

// queueObject queues the hash record for obj and, recursively, for its
// children. Children get their own item records plus an entry in the
// parent's child index so they stay independently addressable.
func (d *Deck) queueObject(p kv.Pipeline, obj *model.Object) error {
	fields, err := d.registry.Marshal(obj)
	if err != nil {
		return err
	}
	p.HSet(d.space.DeckItem(d.Name, obj.Name), fields)

	for _, child := range obj.Children {
		if err := d.queueObject(p, child); err != nil {
			return err
		}
		p.ZAdd(d.space.DeckItemChildren(d.Name, obj.Name), child.Name, child.MassKg)
	}
	return nil
}

// Get returns the named top-level item. Containers come back fully
// composed: every child listed in the child index is resolved and attached,
// recursively. A child that cannot be resolved, or any record with an
// unrecognized kind tag, fails the whole call with codec.ErrInvalidObject
// rather than returning a partial object.
func (d *Deck) Get(ctx context.Context, name string) (*model.Object, error) {
	fields, err := d.store.HGetAll(ctx, d.space.DeckItem(d.Name, name))
	if err != nil {
		return nil, fmt.Errorf("loading %q from deck %s: %w", name, d.Name, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return d.resolve(ctx, fields)
}

func (d *Deck) resolve(ctx context.Context, fields map[string]string) (*model.Object, error) {
	obj, err := d.registry.Unmarshal(fields)
	if err != nil {
		return nil, err
	}
	if obj.Kind != model.KindContainer {
		return obj, nil
	}

	childNames, err := d.store.ZMembers(ctx, d.space.DeckItemChildren(d.Name, obj.Name))
	if err != nil {
		return nil, fmt.Errorf("listing children of %q: %w", obj.Name, err)
	}
	for _, childName := range childNames {
		childFields, err := d.store.HGetAll(ctx, d.space.DeckItem(d.Name, childName))
		if err != nil {
			return nil, fmt.Errorf("loading child %q of %q: %w", childName, obj.Name, err)
		}
		if len(childFields) == 0 {
			return nil, fmt.Errorf("%w: container %q references missing child %q",
				codec.ErrInvalidObject, obj.Name, childName)
		}
		child, err := d.resolve(ctx, childFields)
		if err != nil {
			return nil, err
		}
		obj.Children[child.Name] = child
	}
	return obj, nil
}

// Items iterates the top-level items in ascending mass order. The sequence
// is lazy and restartable; each range re-reads the index.
func (d *Deck) Items(ctx context.Context) iter.Seq2[*model.Object, error] {
	return func(yield func(*model.Object, error) bool) {
		names, err := d.store.ZMembers(ctx, d.space.DeckItems(d.Name))
		if err != nil {
			yield(nil, fmt.Errorf("listing deck %s: %w", d.Name, err))
			return
		}
		for _, name := range names {
			obj, err := d.Get(ctx, name)
			if !yield(obj, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// StoredMass returns the aggregate mass of top-level items.
func (d *Deck) StoredMass(ctx context.Context) (float64, error) {
	mass, err := d.store.GetFloat(ctx, d.space.DeckStoredMass(d.Name))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	return mass, err
}

// Capacity returns the remaining mass budget.
func (d *Deck) Capacity(ctx context.Context) (float64, error) {
	stored, err := d.StoredMass(ctx)
	if err != nil {
		return 0, err
	}
	return d.MaxMassKg - stored, nil
}
