// Package mutate implements the optimistic mutation protocol shared by
// every entity-mutating call site: capture the previous snapshot, write the
// predicted one immediately, dispatch, then reconcile with the server's
// answer or roll back exactly to the capture.
package mutate

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrMutationInFlight rejects a second mutation on an entity whose
	// previous mutation has not settled. Requests are rejected, not queued,
	// so optimistic predictions never compound.
	ErrMutationInFlight = errors.New("a mutation is already in flight for this entity")

	// ErrUnknownEntity means the capture step found no snapshot to mutate.
	ErrUnknownEntity = errors.New("no snapshot for entity")
)

// Coordinator serializes mutations per entity. One coordinator can guard
// any number of entity kinds as long as IDs are unique across them.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]struct{}
	log     zerolog.Logger
}

func NewCoordinator(log zerolog.Logger) *Coordinator {
	return &Coordinator{
		pending: make(map[string]struct{}),
		log:     log,
	}
}

// InFlight reports whether entityID has an unsettled mutation. UI layers
// use this to keep the triggering control disabled.
func (c *Coordinator) InFlight(entityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[entityID]
	return ok
}

func (c *Coordinator) begin(entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[entityID]; ok {
		return ErrMutationInFlight
	}
	c.pending[entityID] = struct{}{}
	return nil
}

func (c *Coordinator) end(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, entityID)
}

// Mutation describes one optimistic mutation of a snapshot of type S. The
// steps mirror the protocol: Capture and Stage are pure, Commit writes the
// prediction into UI-visible state, Send performs the request, Confirm
// applies the server's authoritative snapshot (nil keeps the prediction,
// otherwise the server always wins), and Revert restores the capture.
type Mutation[S any] struct {
	Capture func() (prev S, ok bool)
	Stage   func(prev S) S
	Commit  func(predicted S)
	Send    func(ctx context.Context) (authoritative *S, err error)
	Confirm func(authoritative *S)
	Revert  func(prev S)
}

// pendingMutation is the bookkeeping needed to undo one in-flight
// optimistic update. It exists only for the duration of the request.
type pendingMutation[S any] struct {
	entityID  string
	previous  S
	predicted S
}

// Run executes one mutation under the coordinator's per-entity gate. Every
// failure path restores the previous snapshot before the error is
// re-surfaced; errors are never swallowed here.
func Run[S any](ctx context.Context, c *Coordinator, entityID string, m Mutation[S]) error {
	if err := c.begin(entityID); err != nil {
		return err
	}
	defer c.end(entityID)

	prev, ok := m.Capture()
	if !ok {
		return ErrUnknownEntity
	}

	pending := pendingMutation[S]{
		entityID:  entityID,
		previous:  prev,
		predicted: m.Stage(prev),
	}
	m.Commit(pending.predicted)

	authoritative, err := m.Send(ctx)
	if err != nil {
		c.log.Debug().Str("entity_id", entityID).Err(err).Msg("mutation failed, rolling back")
		m.Revert(pending.previous)
		return err
	}

	if m.Confirm != nil {
		m.Confirm(authoritative)
	}
	return nil
}
