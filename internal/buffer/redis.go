package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tidemark.app/feed/internal/model"
)

// redisBuffer keeps each group in a hash plus a capped sample list, with
// zset indexes by last-event time, first-event time, event count, and claim
// expiry. A per-key "head" counter points at the generation appends go to.
//
// All single-key state transitions run as Lua scripts so concurrent
// producers and sweepers on the same key serialize inside Redis; unrelated
// keys never contend. Non-cluster deployments only: scripts derive hash and
// head key names from the group key.
type redisBuffer struct {
	client    *redis.Client
	prefix    string
	sampleCap int
	claimTTL  time.Duration
}

// DefaultSampleCap bounds how many events a group retains verbatim for
// summary building; beyond it only the count grows.
const DefaultSampleCap = 10

// DefaultClaimTTL bounds how long a finalizer may hold a claim before the
// watchdog sweep can re-claim the group.
const DefaultClaimTTL = 2 * time.Minute

func NewRedis(client *redis.Client, prefix string, sampleCap int, claimTTL time.Duration) Buffer {
	if prefix == "" {
		prefix = "agg"
	}
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &redisBuffer{client: client, prefix: prefix, sampleCap: sampleCap, claimTTL: claimTTL}
}

// appendScript opens, appends to, or redirects past the head group for a
// base key in one atomic step.
//
// KEYS: head counter, idle zset, age zset, count zset
// ARGV: prefix, base key, occurred-at ms, sample cap, sample JSON,
//
//	actor id, container id, verb, object type, bucket
//
// Returns {outcome, group key, event count, first-at ms}.
var appendScript = redis.NewScript(`
local prefix = ARGV[1]
local base = ARGV[2]
local occurred = tonumber(ARGV[3])
local cap = tonumber(ARGV[4])
local sample = ARGV[5]

local gen = tonumber(redis.call('GET', KEYS[1]) or '0')
local gkey = base .. '#' .. gen
local hkey = prefix .. ':g:' .. gkey
local state = redis.call('HGET', hkey, 'state')
local outcome = 'appended'

if state == 'claimed' then
  gen = gen + 1
  redis.call('SET', KEYS[1], gen)
  gkey = base .. '#' .. gen
  hkey = prefix .. ':g:' .. gkey
  state = redis.call('HGET', hkey, 'state')
  outcome = 'redirected'
end

if not state then
  if outcome ~= 'redirected' then
    outcome = 'opened_new'
  end
  redis.call('HSET', hkey,
    'state', 'open',
    'generation', gen,
    'event_count', 1,
    'first_at', occurred,
    'last_at', occurred,
    'actor_id', ARGV[6],
    'container_id', ARGV[7],
    'verb', ARGV[8],
    'object_type', ARGV[9],
    'bucket', ARGV[10])
  redis.call('RPUSH', prefix .. ':s:' .. gkey, sample)
  redis.call('ZADD', KEYS[2], occurred, gkey)
  redis.call('ZADD', KEYS[3], occurred, gkey)
  redis.call('ZADD', KEYS[4], 1, gkey)
  return {outcome, gkey, 1, occurred}
end

local count = redis.call('HINCRBY', hkey, 'event_count', 1)
local last = tonumber(redis.call('HGET', hkey, 'last_at'))
if occurred > last then
  redis.call('HSET', hkey, 'last_at', occurred)
  last = occurred
end
local first = tonumber(redis.call('HGET', hkey, 'first_at'))
local skey = prefix .. ':s:' .. gkey
if redis.call('LLEN', skey) < cap then
  redis.call('RPUSH', skey, sample)
end
redis.call('ZADD', KEYS[2], last, gkey)
redis.call('ZADD', KEYS[4], count, gkey)
return {outcome, gkey, count, first}
`)

// claimScript transitions OPEN (or a lapsed claim) to CLAIMED and bumps the
// head counter past the claimed generation, so no later append can land in
// the snapshot being finalized.
//
// KEYS: idle zset, age zset, count zset, claims zset
// ARGV: prefix, group key, now ms, claim TTL ms
// Returns 0 when missing, 1 when already claimed, else the hash as HGETALL.
var claimScript = redis.NewScript(`
local prefix = ARGV[1]
local gkey = ARGV[2]
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local hkey = prefix .. ':g:' .. gkey

if redis.call('EXISTS', hkey) == 0 then
  return 0
end
local state = redis.call('HGET', hkey, 'state')
local exp = tonumber(redis.call('HGET', hkey, 'claim_exp') or '0')
if state == 'claimed' and exp > now then
  return 1
end

redis.call('HSET', hkey, 'state', 'claimed', 'claim_exp', now + ttl)

local base, gen = string.match(gkey, '^(.+)#(%d+)$')
local headkey = prefix .. ':head:' .. base
local head = tonumber(redis.call('GET', headkey) or '0')
if head == tonumber(gen) then
  redis.call('SET', headkey, head + 1)
end

redis.call('ZREM', KEYS[1], gkey)
redis.call('ZREM', KEYS[2], gkey)
redis.call('ZREM', KEYS[3], gkey)
redis.call('ZADD', KEYS[4], now + ttl, gkey)
return redis.call('HGETALL', hkey)
`)

// releaseScript deletes a finalized group or reverts a failed claim to OPEN
// and re-indexes it so the next sweep retries.
//
// KEYS: idle zset, age zset, count zset, claims zset
// ARGV: prefix, group key, finalized flag
var releaseScript = redis.NewScript(`
local prefix = ARGV[1]
local gkey = ARGV[2]
local hkey = prefix .. ':g:' .. gkey
local skey = prefix .. ':s:' .. gkey

redis.call('ZREM', KEYS[4], gkey)

if ARGV[3] == '1' then
  redis.call('DEL', hkey, skey)
  redis.call('ZREM', KEYS[1], gkey)
  redis.call('ZREM', KEYS[2], gkey)
  redis.call('ZREM', KEYS[3], gkey)
  return 1
end

if redis.call('EXISTS', hkey) == 0 then
  return 0
end
redis.call('HSET', hkey, 'state', 'open')
redis.call('HDEL', hkey, 'claim_exp')
local last = redis.call('HGET', hkey, 'last_at')
local first = redis.call('HGET', hkey, 'first_at')
local count = redis.call('HGET', hkey, 'event_count')
redis.call('ZADD', KEYS[1], last, gkey)
redis.call('ZADD', KEYS[2], first, gkey)
redis.call('ZADD', KEYS[3], count, gkey)
return 1
`)

func (b *redisBuffer) headKey(base string) string  { return b.prefix + ":head:" + base }
func (b *redisBuffer) idleIndex() string           { return b.prefix + ":idx:idle" }
func (b *redisBuffer) ageIndex() string            { return b.prefix + ":idx:age" }
func (b *redisBuffer) countIndex() string          { return b.prefix + ":idx:count" }
func (b *redisBuffer) claimsIndex() string         { return b.prefix + ":idx:claims" }
func (b *redisBuffer) sampleKey(gkey string) string { return b.prefix + ":s:" + gkey }

func (b *redisBuffer) Append(ctx context.Context, key Key, ev model.RawEvent) (AppendResult, error) {
	sample, err := json.Marshal(model.SampledEvent{
		EventID:  ev.ID,
		ObjectID: ev.ObjectID,
		Name:     ev.Metadata[model.MetaName],
	})
	if err != nil {
		return AppendResult{}, fmt.Errorf("marshal sample: %w", err)
	}

	base := key.String()
	raw, err := appendScript.Run(ctx, b.client,
		[]string{b.headKey(base), b.idleIndex(), b.ageIndex(), b.countIndex()},
		b.prefix, base, ev.OccurredAt.UnixMilli(), b.sampleCap, string(sample),
		key.ActorID, key.ContainerID, string(key.Verb), key.ObjectType, key.Bucket,
	).Result()
	if err != nil {
		return AppendResult{}, fmt.Errorf("append script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 4 {
		return AppendResult{}, fmt.Errorf("append script: unexpected reply %v", raw)
	}

	res := AppendResult{
		Outcome:      AppendOutcome(fmt.Sprint(reply[0])),
		GroupKey:     fmt.Sprint(reply[1]),
		EventCount:   int(toInt64(reply[2])),
		FirstEventAt: time.UnixMilli(toInt64(reply[3])),
	}
	return res, nil
}

func (b *redisBuffer) PeekOpenGroups(ctx context.Context, th CloseThresholds, limit int) ([]string, error) {
	now := time.Now()

	idle, err := b.client.ZRangeByScore(ctx, b.idleIndex(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.Add(-th.IdleAfter).UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore idle: %w", err)
	}

	aged, err := b.client.ZRangeByScore(ctx, b.ageIndex(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.Add(-th.MaxAge).UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore age: %w", err)
	}

	full, err := b.client.ZRangeByScore(ctx, b.countIndex(), &redis.ZRangeBy{
		Min: strconv.Itoa(th.MaxEvents), Max: "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore count: %w", err)
	}

	seen := make(map[string]bool, len(idle)+len(aged)+len(full))
	var keys []string
	for _, batch := range [][]string{idle, aged, full} {
		for _, k := range batch {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
				if len(keys) == limit {
					return keys, nil
				}
			}
		}
	}
	return keys, nil
}

func (b *redisBuffer) ExpiredClaims(ctx context.Context, limit int) ([]string, error) {
	keys, err := b.client.ZRangeByScore(ctx, b.claimsIndex(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore claims: %w", err)
	}
	return keys, nil
}

func (b *redisBuffer) TryClaim(ctx context.Context, groupKey string) (*model.BufferGroup, error) {
	raw, err := claimScript.Run(ctx, b.client,
		[]string{b.idleIndex(), b.ageIndex(), b.countIndex(), b.claimsIndex()},
		b.prefix, groupKey, time.Now().UnixMilli(), b.claimTTL.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("claim script: %w", err)
	}

	switch v := raw.(type) {
	case int64:
		if v == 0 {
			return nil, ErrGroupNotFound
		}
		return nil, ErrGroupClaimed
	case []interface{}:
		group, err := parseGroupReply(groupKey, v)
		if err != nil {
			return nil, err
		}
		sample, err := b.client.LRange(ctx, b.sampleKey(groupKey), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("lrange sample: %w", err)
		}
		for _, item := range sample {
			var ev model.SampledEvent
			if err := json.Unmarshal([]byte(item), &ev); err != nil {
				slog.WarnContext(ctx, "skipping unreadable sample entry", "group_key", groupKey, "error", err)
				continue
			}
			group.Sample = append(group.Sample, ev)
		}
		return group, nil
	default:
		return nil, fmt.Errorf("claim script: unexpected reply %v", raw)
	}
}

func (b *redisBuffer) Release(ctx context.Context, groupKey string, finalized bool) error {
	flag := "0"
	if finalized {
		flag = "1"
	}
	if err := releaseScript.Run(ctx, b.client,
		[]string{b.idleIndex(), b.ageIndex(), b.countIndex(), b.claimsIndex()},
		b.prefix, groupKey, flag,
	).Err(); err != nil {
		return fmt.Errorf("release script: %w", err)
	}
	return nil
}

func parseGroupReply(groupKey string, reply []interface{}) (*model.BufferGroup, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("claim script: odd hash reply for %s", groupKey)
	}
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		fields[fmt.Sprint(reply[i])] = fmt.Sprint(reply[i+1])
	}

	group := &model.BufferGroup{
		Key:          groupKey,
		Verb:         model.Verb(fields["verb"]),
		ObjectType:   fields["object_type"],
		State:        model.GroupState(fields["state"]),
		FirstEventAt: time.UnixMilli(parseInt(fields["first_at"])),
		LastEventAt:  time.UnixMilli(parseInt(fields["last_at"])),
	}
	group.Generation = int(parseInt(fields["generation"]))
	group.ActorID = parseInt(fields["actor_id"])
	group.ContainerID = parseInt(fields["container_id"])
	group.EventCount = int(parseInt(fields["event_count"]))
	if exp := parseInt(fields["claim_exp"]); exp > 0 {
		group.ClaimExpiresAt = time.UnixMilli(exp)
	}
	return group, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		return parseInt(n)
	default:
		return 0
	}
}
