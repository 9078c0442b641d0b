// Package lock implements the coordination-service lock recovery holds
// for the duration of one failed server's operation: an exclusive hold on
// the server's
// `<toplevel>/servers/<location>` entry, backed here by a Consul session
// tied to a KV key, so that at most one master process at a time
// may recover a given server.
package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/lthibault/jitterbug"
)

const keyPrefix = "servers/"

// RecoveryLock is an acquired exclusive hold on one failed server's
// coordination-service entry. It must be released exactly once, and held
// for the entire span of the recover-server operation that acquired it.
type RecoveryLock struct {
	client    *consulapi.Client
	key       string
	sessionID string
}

// Locker acquires and releases per-location recovery locks against a
// Consul KV store.
type Locker struct {
	client *consulapi.Client
	// RetryInterval is the fixed back-off between lock-conflict retries,
	// jittered per attempt (Hypertable.Connection.Retry.Interval).
	RetryInterval time.Duration
	// MaxAttempts bounds the retry loop; exceeding it is a fatal
	// lock-conflict error.
	MaxAttempts int
}

func NewLocker(client *consulapi.Client, retryInterval time.Duration, maxAttempts int) *Locker {
	return &Locker{client: client, RetryInterval: retryInterval, MaxAttempts: maxAttempts}
}

// TryAcquireForRecovery opens the coordination-service file for location
// with an exclusive lock, retrying on conflict with a jittered fixed
// back-off up to MaxAttempts times. Exceeding the cap is a fatal error --
// once a recovery has passed INITIAL a lock-acquisition failure can never
// be a transient condition, since nobody else may legally hold that lock.
func (l *Locker) TryAcquireForRecovery(ctx context.Context, location string) (*RecoveryLock, error) {
	key := keyPrefix + location

	sessionEntry := &consulapi.SessionEntry{
		Name:     fmt.Sprintf("recovery/%s", location),
		Behavior: consulapi.SessionBehaviorRelease,
		TTL:      "30s",
	}
	sessionID, _, err := l.client.Session().Create(sessionEntry, nil)
	if err != nil {
		return nil, fmt.Errorf("lock: create session for %s: %w", location, err)
	}

	ticker := jitterbug.New(l.RetryInterval, &jitterbug.Norm{Stdev: l.RetryInterval / 10})
	defer ticker.Stop()

	for attempt := 1; attempt <= l.MaxAttempts; attempt++ {
		pair := &consulapi.KVPair{Key: key, Value: []byte(location), Session: sessionID}
		acquired, _, err := l.client.KV().Acquire(pair, nil)
		if err != nil {
			l.client.Session().Destroy(sessionID, nil)
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if acquired {
			return &RecoveryLock{client: l.client, key: key, sessionID: sessionID}, nil
		}

		log.Printf("lock: %s held by someone else, attempt %d/%d", key, attempt, l.MaxAttempts)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			l.client.Session().Destroy(sessionID, nil)
			return nil, ctx.Err()
		}
	}

	l.client.Session().Destroy(sessionID, nil)
	return nil, fmt.Errorf("lock: %s: exceeded %d attempts, fatal", key, l.MaxAttempts)
}

// Release gives up the lock and destroys its backing session. Safe to call
// once, at the end of the recover-server operation that acquired it.
func (rl *RecoveryLock) Release() error {
	pair := &consulapi.KVPair{Key: rl.key, Session: rl.sessionID}
	if _, _, err := rl.client.KV().Release(pair, nil); err != nil {
		log.Printf("lock: release %s failed: %v", rl.key, err)
		return err
	}
	if _, err := rl.client.Session().Destroy(rl.sessionID, nil); err != nil {
		log.Printf("lock: destroy session for %s failed: %v", rl.key, err)
		return err
	}
	return nil
}
