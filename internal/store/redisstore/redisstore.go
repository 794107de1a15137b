// Package redisstore is the distributed Job Store backed by Redis (spec.md
// §4.1.4), grounded on the teacher's worker/redis.go: a thin Pool
// abstraction over gomodule/redigo. Create, claim and recovery are single
// Lua scripts; UpdateJob sends its hash write and ready-index update in one
// MULTI/EXEC transaction rather than a script. Either way the ready-index
// update and the job hash update commit together.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/store"
)

var (
	errNotFoundHash        = errors.New("redisstore: empty hash")
	errUnexpectedReplyType = errors.New("redisstore: unexpected reply type")
)

// Pool is the subset of *redis.Pool this store needs, mirrored on the
// teacher's own worker.Pool interface so a *redis.Pool satisfies it
// directly and tests can substitute a fake.
type Pool interface {
	Get() redis.Conn
}

// Store is the Redis-backed Job Store.
type Store struct {
	pool      Pool
	namespace string
	clk       clock.Clock
}

// New builds a Store over pool, namespacing every key under namespace
// (defaulted to "ae" per spec.md §6.3).
func New(pool Pool, namespace string, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		pool:      pool,
		namespace: defaultNamespace(namespace),
		clk:       clk,
	}
}

func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	if j == nil || j.ID == uuid.Nil {
		return store.ErrInvalid("job and job.ID must be non-nil")
	}

	conn := s.pool.Get()
	defer conn.Close()

	args, err := toHashArgs(j)
	if err != nil {
		return store.ErrInvalid(err.Error())
	}

	shouldQueue := "0"
	if j.Status == job.StatusQueued {
		shouldQueue = "1"
	}

	callArgs := []any{
		keyJob(s.namespace, j.ID.String()), keyKnownIDs(s.namespace), keyQueue(s.namespace),
		j.ID.String(), shouldQueue, j.ReadyScore(),
	}
	callArgs = append(callArgs, args...)

	created, err := redis.Int(createScript.Do(conn, callArgs...))
	if err != nil {
		return store.ErrStorageUnavailable(err)
	}
	if created == 0 {
		return store.ErrDuplicate(j.ID)
	}
	return nil
}

func (s *Store) GetJobByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	conn := s.pool.Get()
	defer conn.Close()

	flat, err := redis.Values(conn.Do("HGETALL", keyJob(s.namespace, id.String())))
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	if len(flat) == 0 {
		return nil, store.ErrNotFound(id)
	}

	fields, err := flatToMap(flat)
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	j, err := fromHash(fields)
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	if j == nil || j.ID == uuid.Nil {
		return store.ErrInvalid("job and job.ID must be non-nil")
	}

	conn := s.pool.Get()
	defer conn.Close()

	jobKey := keyJob(s.namespace, j.ID.String())
	exists, err := redis.Int(conn.Do("EXISTS", jobKey))
	if err != nil {
		return store.ErrStorageUnavailable(err)
	}
	if exists == 0 {
		return store.ErrNotFound(j.ID)
	}

	cp := j.Clone()
	cp.LastUpdatedAt = s.clk.Now()

	args, err := toHashArgs(cp)
	if err != nil {
		return store.ErrInvalid(err.Error())
	}

	conn.Send("MULTI")
	conn.Send("HSET", redis.Args{jobKey}.AddFlat(args)...)
	if cp.WorkerID == nil {
		conn.Send("HDEL", redis.Args{jobKey}.AddFlat(clearedFieldsOnRequeue)...)
	}
	if cp.WorkerID == nil && cp.Status.Claimable() {
		conn.Send("ZADD", keyQueue(s.namespace), cp.ReadyScore(), cp.ID.String())
	} else {
		conn.Send("ZREM", keyQueue(s.namespace), cp.ID.String())
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return store.ErrStorageUnavailable(err)
	}
	return nil
}

func (s *Store) GetJobsByStatus(_ context.Context, status job.Status, limit int) ([]*job.Job, error) {
	conn := s.pool.Get()
	defer conn.Close()

	out := make([]*job.Job, 0, limit)
	cursor := "0"
	for {
		res, err := redis.Values(conn.Do("SSCAN", keyKnownIDs(s.namespace), cursor, "COUNT", 100))
		if err != nil {
			return nil, store.ErrStorageUnavailable(err)
		}
		cursor, err = redis.String(res[0], nil)
		if err != nil {
			return nil, store.ErrStorageUnavailable(err)
		}
		ids, err := redis.Strings(res[1], nil)
		if err != nil {
			return nil, store.ErrStorageUnavailable(err)
		}

		for _, id := range ids {
			flat, err := redis.Values(conn.Do("HGETALL", keyJob(s.namespace, id)))
			if err != nil {
				return nil, store.ErrStorageUnavailable(err)
			}
			if len(flat) == 0 {
				continue
			}
			fields, err := flatToMap(flat)
			if err != nil {
				return nil, store.ErrStorageUnavailable(err)
			}
			j, err := fromHash(fields)
			if err != nil {
				return nil, store.ErrStorageUnavailable(err)
			}
			if j.Status == status {
				out = append(out, j)
				if len(out) >= limit {
					return out, nil
				}
			}
		}

		if cursor == "0" {
			break
		}
	}
	return out, nil
}

func (s *Store) ClaimNextAvailableJob(_ context.Context, workerID uuid.UUID) (*job.Job, error) {
	conn := s.pool.Get()
	defer conn.Close()

	now := s.clk.Now()
	reply, err := claimScript.Do(conn,
		keyQueue(s.namespace),
		now.Unix(),
		workerID.String(),
		now.Format(time.RFC3339Nano),
		keyJob(s.namespace, ""))
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	if reply == nil {
		return nil, nil
	}

	flat, err := redis.Values(reply, nil)
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	if len(flat) == 0 {
		return nil, nil
	}
	fields, err := flatToMap(flat)
	if err != nil {
		return nil, store.ErrStorageUnavailable(err)
	}
	return fromHash(fields)
}

// RecoverStuckJobs pages the known-ids registry via recoverScript until the
// scan cursor returns to "0", per spec.md §4.1's recovery contract. Callers
// performing distributed recovery are expected to hold the recovery lock
// (see AcquireLock/ReleaseLock) around this call; the store itself does not
// serialize concurrent recovery runs.
func (s *Store) RecoverStuckJobs(_ context.Context, timeoutInstant time.Time, maxRetries int, retryBaseSeconds int) (int, error) {
	conn := s.pool.Get()
	defer conn.Close()

	now := s.clk.Now()
	cursor := "0"
	total := 0
	for {
		reply, err := recoverScript.Do(conn,
			keyKnownIDs(s.namespace),
			keyQueue(s.namespace),
			cursor,
			100,
			timeoutInstant.Unix(),
			maxRetries,
			retryBaseSeconds,
			now.Unix(),
			now.Format(time.RFC3339Nano),
			keyJob(s.namespace, ""))
		if err != nil {
			return total, store.ErrStorageUnavailable(err)
		}

		vals, err := redis.Values(reply, nil)
		if err != nil {
			return total, store.ErrStorageUnavailable(err)
		}
		cursor, err = redis.String(vals[0], nil)
		if err != nil {
			return total, store.ErrStorageUnavailable(err)
		}
		count, err := redis.Int(vals[1], nil)
		if err != nil {
			return total, store.ErrStorageUnavailable(err)
		}
		total += count

		if cursor == "0" {
			break
		}
	}
	return total, nil
}

func (s *Store) SupportsRecovery() bool { return true }

// AcquireLock takes the distributed recovery lock described in spec.md
// §4.6, via SET NX PX with nonce as the value, returning true on success
// and false if another recoverer already holds it.
func (s *Store) AcquireLock(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("SET", keyRecoveryLock(s.namespace), nonce, "NX", "PX", ttl.Milliseconds())
	if err != nil {
		return false, store.ErrStorageUnavailable(err)
	}
	return reply != nil, nil
}

// ReleaseLock releases the recovery lock iff it is still held by nonce,
// via the teacher-grounded compare-and-delete script.
func (s *Store) ReleaseLock(_ context.Context, nonce string) error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := releaseLockScript.Do(conn, keyRecoveryLock(s.namespace), nonce)
	if err != nil {
		return store.ErrStorageUnavailable(err)
	}
	return nil
}
