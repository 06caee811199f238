// Package directory maps session ids to their live actors. It is the only
// cross-session shared state: a mutex-guarded registry supporting concurrent
// create, lookup, and remove without one session's lifecycle touching
// another's.
package directory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/louisbranch/pointing.space/internal/poker/actor"
	"github.com/louisbranch/pointing.space/internal/poker/domain"
	"github.com/louisbranch/pointing.space/internal/poker/pubsub"
)

// maxCreateAttempts bounds id-collision retries. Collisions on 50-bit tokens
// against a registry of live sessions are vanishingly rare; hitting the
// bound means the id source is broken.
const maxCreateAttempts = 5

// ErrNotFound mirrors actor.ErrNotFound for callers resolving sessions.
var ErrNotFound = actor.ErrNotFound

// Directory creates, resolves, and reclaims session actors.
type Directory struct {
	mu     sync.Mutex
	actors map[string]*actor.Actor
	broker *pubsub.Broker
	cfg    actor.Config
	newID  func() (string, error)
}

// New creates an empty directory. Actors it starts share the given broker
// and lifecycle configuration.
func New(broker *pubsub.Broker, cfg actor.Config) *Directory {
	return &Directory{
		actors: make(map[string]*actor.Actor),
		broker: broker,
		cfg:    cfg,
		newID:  domain.NewSessionID,
	}
}

// Create starts a new session actor under a freshly generated id. If a
// generated id collides with a still-live session, creation retries with a
// new id rather than overwriting.
func (d *Directory) Create(ctx context.Context, input domain.CreateSessionInput) (domain.Session, error) {
	_, span := otel.Tracer("pointing.space/poker").Start(ctx, "directory.create")
	defer span.End()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		session, err := domain.CreateSession(input, nil, d.newID)
		if err != nil {
			return domain.Session{}, err
		}

		d.mu.Lock()
		if _, taken := d.actors[session.ID]; taken {
			d.mu.Unlock()
			continue
		}
		d.actors[session.ID] = actor.Start(session, d.broker, d.cfg, d.remove)
		d.mu.Unlock()

		span.SetAttributes(attribute.String("session.id", session.ID))
		log.Printf("poker: session created id=%s name=%q deck=%s", session.ID, session.Name, session.Deck)
		return session, nil
	}

	return domain.Session{}, fmt.Errorf("generate unique session id: %d collisions", maxCreateAttempts)
}

// Lookup resolves a session id to its live actor.
func (d *Directory) Lookup(sessionID string) (*actor.Actor, error) {
	d.mu.Lock()
	a, ok := d.actors[sessionID]
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Has reports whether the session id resolves to a live actor.
func (d *Directory) Has(sessionID string) bool {
	d.mu.Lock()
	_, ok := d.actors[sessionID]
	d.mu.Unlock()
	return ok
}

// Len reports the number of live sessions.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.actors)
}

// Stop terminates the session's actor, discarding its state.
func (d *Directory) Stop(sessionID string) error {
	a, err := d.Lookup(sessionID)
	if err != nil {
		return err
	}
	a.Stop()
	return nil
}

// Shutdown terminates every live actor. Used on process shutdown.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	actors := make([]*actor.Actor, 0, len(d.actors))
	for _, a := range d.actors {
		actors = append(actors, a)
	}
	d.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
}

// remove is the actor termination hook. It runs synchronously with
// termination so a stale handle is never returned after an actor dies.
func (d *Directory) remove(sessionID string) {
	d.mu.Lock()
	delete(d.actors, sessionID)
	d.mu.Unlock()
	log.Printf("poker: session reclaimed id=%s", sessionID)
}
