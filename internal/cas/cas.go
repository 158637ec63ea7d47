// Package cas implements the Post-Condition Emulator (spec C8): a
// version-guarded compare-and-swap retry loop that lets a provider with no
// native conditional-write support still offer the same condition
// semantics as one that does. Grounded on the teacher's pkg/lease.Manager
// (functional-options construction, injectable now()/token() for
// deterministic tests, uuid.NewString version tokens) generalized from a
// fixed PK/SK lock record to an arbitrary read-evaluate-write cycle over
// any item, and on the backoff/retry shape in
// other_examples/2efff4ab_gravitational-teleport__lib-backend-memory-
// atomicwrite.go.go (read current revision, evaluate caller-supplied
// conditions against it, write guarded by the observed revision).
package cas

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
	"github.com/bkio/crosscloudkit/pkg/consistency"
)

// VersionedItem is a snapshot of an item plus its opaque version token, as
// observed by one read of Emulator.Execute's loop.
type VersionedItem struct {
	Item    map[string]any
	Version string
	Found   bool
}

// errVersionRace is returned internally by the write step when the
// observed version no longer matches what is stored; it is never returned
// from Execute, only used to decide whether to retry.
var errVersionRace = errors.New("cas: version changed between read and write")

// Option configures an Emulator, mirroring the teacher's lease.Option
// pattern.
type Option func(*Emulator)

func WithNow(now func() time.Time) Option {
	return func(e *Emulator) {
		if now != nil {
			e.now = now
		}
	}
}

func WithTokenGenerator(token func() string) Option {
	return func(e *Emulator) {
		if token != nil {
			e.token = token
		}
	}
}

func WithRetryConfig(cfg consistency.RetryConfig) Option {
	return func(e *Emulator) { e.retry = cfg }
}

// Emulator runs the read-evaluate-guarded-write loop. It holds no state
// about any particular table or item; a provider constructs one Emulator
// and reuses it across every CAS-guarded operation.
type Emulator struct {
	now   func() time.Time
	token func() string
	retry consistency.RetryConfig
}

func New(opts ...Option) *Emulator {
	e := &Emulator{
		now:   time.Now,
		token: uuid.NewString,
		retry: consistency.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewVersion returns a fresh opaque version token, exposed so a provider
// can stamp a brand-new item on first write without going through Execute.
func (e *Emulator) NewVersion() string { return e.token() }

// Now returns the emulator's configured clock, exposed for providers that
// need the same injectable time source for TTL/expiry bookkeeping.
func (e *Emulator) Now() time.Time { return e.now() }

// Execute runs the CAS loop:
//  1. read the current item and its version token.
//  2. evaluate the caller's condition tree against the snapshot; a false
//     result is a genuine condition failure (ErrConditionFailed), not
//     retried.
//  3. attempt the guarded write, passing the observed version plus a
//     freshly minted replacement version. If write reports that another
//     writer changed the version in between, the whole cycle retries with
//     backoff; if the retry budget is exhausted, Execute returns
//     ErrConflict.
func (e *Emulator) Execute(
	ctx context.Context,
	read func(ctx context.Context) (VersionedItem, error),
	check func(VersionedItem) (bool, error),
	write func(ctx context.Context, observed VersionedItem, newVersion string) error,
) error {
	err := consistency.Do(ctx, e.retry, func(err error) bool {
		return errors.Is(err, errVersionRace)
	}, func(ctx context.Context, _ int) error {
		observed, err := read(ctx)
		if err != nil {
			return err
		}
		ok, err := check(observed)
		if err != nil {
			return err
		}
		if !ok {
			return crosscloudkiterrors.ErrConditionFailed
		}
		newVersion := e.token()
		if err := write(ctx, observed, newVersion); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, errVersionRace) {
		return crosscloudkiterrors.ErrConflict
	}
	return err
}

// IsVersionRace reports whether err is the internal race signal a
// provider's write step should return from inside Execute's write
// callback when it detects the observed version is stale.
func IsVersionRace(err error) bool { return errors.Is(err, errVersionRace) }

// VersionRace is the error a provider's write callback must return (wrap
// with fmt.Errorf("...: %w", cas.VersionRace) or return directly) to signal
// a stale-version retry rather than a hard failure.
var VersionRace = errVersionRace
