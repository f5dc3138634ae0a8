package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the repository interfaces on Redis so that several
// processes can share queues.
//
// Layout, with the default prefix "queue":
//
//	queue:task:<id>           task JSON
//	queue:pending:<queue>     ZSET of due-time (unix ms) → task id
//	queue:processing:<queue>  ZSET of lock deadline (unix ms) → task id
//	queue:dlq:<queue>         LIST of dead task JSON, newest first
//	queue:name:<task name>    id of the live periodic task with that name
//
// Moving an id between the pending and processing sets happens inside a Lua
// script, so a task is claimed by at most one worker. Priority is not
// considered; tasks are claimed in due-time order.
type RedisStorage struct {
	client   redis.UniversalClient
	prefix   string
	dlqLimit int
}

// NewRedisStorage creates a Redis-backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...StorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}
	o := defaultStorageOptions(opts)
	return &RedisStorage{client: client, prefix: o.prefix, dlqLimit: o.dlqLimit}, nil
}

// claimScript first returns expired locks to the pending set, then pops the
// earliest due id of the first non-empty queue into the processing set.
//
// KEYS: pending1, processing1, pending2, processing2, ...
// ARGV: now (ms), lock deadline (ms)
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
for i = 1, #KEYS, 2 do
	local expired = redis.call('ZRANGEBYSCORE', KEYS[i+1], '-inf', now)
	for _, id in ipairs(expired) do
		redis.call('ZREM', KEYS[i+1], id)
		redis.call('ZADD', KEYS[i], now, id)
	end
end
for i = 1, #KEYS, 2 do
	local ids = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', now, 'LIMIT', 0, 1)
	if #ids > 0 then
		redis.call('ZREM', KEYS[i], ids[1])
		redis.call('ZADD', KEYS[i+1], ARGV[2], ids[1])
		return ids[1]
	end
end
return false
`)

func (rs *RedisStorage) taskKey(id uuid.UUID) string   { return rs.prefix + ":task:" + id.String() }
func (rs *RedisStorage) pendingKey(q string) string    { return rs.prefix + ":pending:" + q }
func (rs *RedisStorage) processingKey(q string) string { return rs.prefix + ":processing:" + q }
func (rs *RedisStorage) dlqKey(q string) string        { return rs.prefix + ":dlq:" + q }
func (rs *RedisStorage) nameKey(name string) string    { return rs.prefix + ":name:" + name }

func (rs *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("queue: task cannot be nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}

	ok, err := rs.client.SetNX(ctx, rs.taskKey(task.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("queue: store task: %w", err)
	}
	if !ok {
		return ErrTaskExists
	}

	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, rs.pendingKey(task.Queue), redis.Z{Score: float64(task.ScheduledAt.UnixMilli()), Member: task.ID.String()})
		if task.TaskType == TaskTypePeriodic {
			p.Set(ctx, rs.nameKey(task.TaskName), task.ID.String(), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue: index task: %w", err)
	}
	return nil
}

func (rs *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	keys := make([]string, 0, len(queues)*2)
	for _, q := range queues {
		keys = append(keys, rs.pendingKey(q), rs.processingKey(q))
	}

	now := time.Now()
	lockUntil := now.Add(lockDuration)
	res, err := claimScript.Run(ctx, rs.client, keys, now.UnixMilli(), lockUntil.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}

	id, err := uuid.Parse(res)
	if err != nil {
		return nil, fmt.Errorf("queue: claimed malformed id %q: %w", res, err)
	}

	task, err := rs.load(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Status = TaskStatusProcessing
	task.Attempts++
	task.LockedUntil = &lockUntil
	task.LockedBy = &workerID
	if err := rs.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (rs *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := rs.load(ctx, taskID)
	if err != nil {
		return err
	}

	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, rs.processingKey(task.Queue), taskID.String())
		p.Del(ctx, rs.taskKey(taskID))
		if task.TaskType == TaskTypePeriodic {
			p.Del(ctx, rs.nameKey(task.TaskName))
		}
		return nil
	})
	return err
}

func (rs *RedisStorage) RetryTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error {
	task, err := rs.load(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = TaskStatusPending
	task.Error = errMsg
	task.ScheduledAt = retryAt
	task.LockedUntil = nil
	task.LockedBy = nil

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rs.taskKey(taskID), data, 0)
		p.ZRem(ctx, rs.processingKey(task.Queue), taskID.String())
		p.ZAdd(ctx, rs.pendingKey(task.Queue), redis.Z{Score: float64(retryAt.UnixMilli()), Member: taskID.String()})
		return nil
	})
	return err
}

func (rs *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	task, err := rs.load(ctx, taskID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(newDeadTask(task, errMsg, time.Now()))
	if err != nil {
		return fmt.Errorf("queue: encode dead task: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, rs.dlqKey(task.Queue), data)
		p.LTrim(ctx, rs.dlqKey(task.Queue), 0, int64(rs.dlqLimit-1))
		p.ZRem(ctx, rs.processingKey(task.Queue), taskID.String())
		p.ZRem(ctx, rs.pendingKey(task.Queue), taskID.String())
		p.Del(ctx, rs.taskKey(taskID))
		if task.TaskType == TaskTypePeriodic {
			p.Del(ctx, rs.nameKey(task.TaskName))
		}
		return nil
	})
	return err
}

func (rs *RedisStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	task, err := rs.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != TaskStatusProcessing {
		return ErrTaskNotProcessing
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	if err := rs.save(ctx, task); err != nil {
		return err
	}
	return rs.client.ZAddXX(ctx, rs.processingKey(task.Queue),
		redis.Z{Score: float64(lockUntil.UnixMilli()), Member: taskID.String()}).Err()
}

func (rs *RedisStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	raw, err := rs.client.Get(ctx, rs.nameKey(taskName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return rs.load(ctx, id)
}

// DeadTasks returns the dead-letter set of queue, newest first.
func (rs *RedisStorage) DeadTasks(ctx context.Context, queue string) ([]*DeadTask, error) {
	items, err := rs.client.LRange(ctx, rs.dlqKey(queue), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*DeadTask, 0, len(items))
	for _, item := range items {
		var dt DeadTask
		if err := json.Unmarshal([]byte(item), &dt); err != nil {
			return nil, fmt.Errorf("queue: decode dead task: %w", err)
		}
		out = append(out, &dt)
	}
	return out, nil
}

func (rs *RedisStorage) load(ctx context.Context, id uuid.UUID) (*Task, error) {
	data, err := rs.client.Get(ctx, rs.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load task: %w", err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("queue: decode task: %w", err)
	}
	return &task, nil
}

func (rs *RedisStorage) save(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	return rs.client.Set(ctx, rs.taskKey(task.ID), data, 0).Err()
}
