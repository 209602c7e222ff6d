// internal/queue/scripts.go
package queue

import "github.com/redis/go-redis/v9"

// priorityWeight separates priority bands in the wait zset score.
const priorityWeight = 1e13

// KEYS: wait, active. ARGV: lease deadline ms, job key prefix.
var claimScript = redis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
local key = ARGV[2] .. id
if redis.call('EXISTS', key) == 0 then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
local attempts = redis.call('HINCRBY', key, 'attempts', 1)
redis.call('HSET', key, 'state', 'active')
local f = redis.call('HMGET', key, 'name', 'data', 'maxAttempts', 'priority')
return {id, f[1], f[2], tostring(attempts), f[3], f[4]}
`)

// KEYS: active, completed. ARGV: id, keep, job key prefix, now ms.
var completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', ARGV[3] .. ARGV[1], 'state', 'completed', 'finishedAt', ARGV[4])
redis.call('LPUSH', KEYS[2], ARGV[1])
local keep = tonumber(ARGV[2])
local stale = redis.call('LRANGE', KEYS[2], keep, -1)
for _, id in ipairs(stale) do
  redis.call('DEL', ARGV[3] .. id)
end
redis.call('LTRIM', KEYS[2], 0, keep - 1)
return 1
`)

// KEYS: active, failed. ARGV: id, keep, job key prefix, now ms, error.
var deadLetterScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', ARGV[3] .. ARGV[1], 'state', 'failed', 'finishedAt', ARGV[4], 'lastError', ARGV[5])
redis.call('LPUSH', KEYS[2], ARGV[1])
local keep = tonumber(ARGV[2])
local stale = redis.call('LRANGE', KEYS[2], keep, -1)
for _, id in ipairs(stale) do
  redis.call('DEL', ARGV[3] .. id)
end
redis.call('LTRIM', KEYS[2], 0, keep - 1)
return 1
`)

// KEYS: active, delayed. ARGV: id, run at ms, job key prefix, error.
var retryScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', ARGV[3] .. ARGV[1], 'state', 'delayed', 'lastError', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// Moves members of a timed zset whose score is due back to wait.
// KEYS: source, wait. ARGV: now ms, job key prefix, limit, priority weight.
var requeueDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local moved = 0
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local p = tonumber(redis.call('HGET', ARGV[2] .. id, 'priority') or '1')
    redis.call('ZADD', KEYS[2], p * tonumber(ARGV[4]) + tonumber(ARGV[1]), id)
    redis.call('HSET', ARGV[2] .. id, 'state', 'waiting')
    moved = moved + 1
  end
end
return moved
`)
