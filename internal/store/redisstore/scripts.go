package redisstore

import "github.com/gomodule/redigo/redis"

// Lua scripts, defined as package-level redis.Script values evaluated over
// a pooled connection — the same shape as the teacher's redisLuaFetchJob /
// redisRemoveJobFromInProgress / redisReleaseLockScript. Create, claim and
// recovery each run as one of these scripts. UpdateJob is not scripted: it
// pairs its hash write with the ready-index update in a MULTI/EXEC
// transaction (see Store.UpdateJob).

// createScript performs the check-and-set CreateJob needs atomically: a
// separate EXISTS-then-MULTI/EXEC round trip leaves a window where two
// concurrent creates for the same id both pass the existence check before
// either writes, so the check and the write are folded into one script
// instead, the same way claimScript folds its own eligibility re-check into
// the claim.
//
// KEYS[1] = job hash key, eg "ae:job:<id>"
// KEYS[2] = known-ids set, eg "ae:jobs:ids"
// KEYS[3] = ready index zset, eg "ae:jobs:queue"
// ARGV[1] = job id string
// ARGV[2] = "1" to also ZADD into the ready index, "0" otherwise
// ARGV[3] = ready-index score (ignored when ARGV[2] == "0")
// ARGV[4..] = flattened field/value pairs for HSET
//
// Returns 1 on a fresh create, 0 if the hash already existed.
var createScript = redis.NewScript(3, `
local id = ARGV[1]
local shouldQueue = ARGV[2]
local score = ARGV[3]

if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end

local fields = {}
for i = 4, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
redis.call('SADD', KEYS[2], id)
if shouldQueue == '1' then
  redis.call('ZADD', KEYS[3], score, id)
end

return 1
`)

// claimScript pops the lowest-score eligible id from the ready index and
// transitions it to InProgress, re-checking eligibility server-side before
// committing (spec.md §4.1.4's claim script contract).
//
// KEYS[1] = ready index zset, eg "ae:jobs:queue"
// ARGV[1] = now, unix seconds
// ARGV[2] = worker id
// ARGV[3] = now, ISO 8601
// ARGV[4] = job hash key prefix, eg "ae:job:"
//
// Returns the full job hash (HGETALL-shaped flat array) of the claimed job,
// or nil if nothing was eligible.
var claimScript = redis.NewScript(1, `
local now = tonumber(ARGV[1])
local workerID = ARGV[2]
local nowISO = ARGV[3]
local prefix = ARGV[4]

local popped = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, 1)
if #popped == 0 then
  return nil
end

local id = popped[1]
redis.call('ZREM', KEYS[1], id)

local jobKey = prefix .. id
local fields = redis.call('HMGET', jobKey, 'Status', 'WorkerId', 'RetryDelayUntilUnix')
local status = fields[1]
local workerId = fields[2]
local retryDelayUntilUnix = fields[3]

local eligible = (status == '100' or status == '200')
  and (not workerId or workerId == '')
  and (not retryDelayUntilUnix or retryDelayUntilUnix == '' or tonumber(retryDelayUntilUnix) <= now)

if not eligible then
  -- Not re-inserted: a job only ends up here if another actor already
  -- transitioned or claimed it outside the ready index, so the queue
  -- entry was stale.
  return nil
end

redis.call('HSET', jobKey,
  'Status', '300',
  'WorkerId', workerID,
  'StartedAt', nowISO,
  'StartedAtUnix', tostring(now),
  'LastUpdatedAt', nowISO)

return redis.call('HGETALL', jobKey)
`)

// recoverScript scans the known-job-id registry in SSCAN-sized pages,
// resetting orphaned InProgress jobs back to Scheduled (or terminal Failed
// once the retry cap is hit), per spec.md §4.1's RecoverStuckJobs contract.
//
// KEYS[1] = known-ids set, eg "ae:jobs:ids"
// KEYS[2] = ready index zset, eg "ae:jobs:queue"
// ARGV[1] = scan cursor ("0" to start)
// ARGV[2] = scan page count
// ARGV[3] = timeout instant, unix seconds (StartedAtUnix <= this is stuck)
// ARGV[4] = max retries
// ARGV[5] = retry base seconds
// ARGV[6] = now, unix seconds
// ARGV[7] = now, ISO 8601
// ARGV[8] = job hash key prefix
//
// Returns {nextCursor, recoveredCount} for this page; the Go caller loops
// until nextCursor is "0".
var recoverScript = redis.NewScript(2, `
local cursor = ARGV[1]
local count = ARGV[2]
local timeoutInstant = tonumber(ARGV[3])
local maxRetries = tonumber(ARGV[4])
local retryBase = tonumber(ARGV[5])
local now = tonumber(ARGV[6])
local nowISO = ARGV[7]
local prefix = ARGV[8]

local res = redis.call('SSCAN', KEYS[1], cursor, 'COUNT', count)
local nextCursor = res[1]
local ids = res[2]
local recovered = 0

for i = 1, #ids do
  local id = ids[i]
  local jobKey = prefix .. id
  local fields = redis.call('HMGET', jobKey, 'Status', 'StartedAtUnix', 'RetryCount')

  if fields[1] == '300' and fields[2] and fields[2] ~= '' and tonumber(fields[2]) <= timeoutInstant then
    local retryCount = tonumber(fields[3]) or 0

    if retryCount < maxRetries then
      retryCount = retryCount + 1
      local backoff = (2 ^ retryCount) * retryBase
      local delayUntil = now + backoff

      redis.call('HSET', jobKey,
        'Status', '200',
        'RetryCount', tostring(retryCount),
        'RetryDelayUntilUnix', tostring(delayUntil),
        'LastUpdatedAt', nowISO)
      redis.call('HDEL', jobKey, 'WorkerId', 'StartedAt', 'StartedAtUnix')
      redis.call('ZADD', KEYS[2], delayUntil, id)
    else
      redis.call('HSET', jobKey,
        'Status', '500',
        'CompletedAt', nowISO,
        'LastUpdatedAt', nowISO)
    end

    recovered = recovered + 1
  end
end

return {nextCursor, recovered}
`)

// releaseLockScript performs the compare-and-delete the recovery
// distributed lock needs, grounded on the teacher's own
// redisReleaseLockScript ("GET == ARGV[1] then DEL else 0").
//
// KEYS[1] = lock key
// ARGV[1] = lock value (nonce) held by the caller
var releaseLockScript = redis.NewScript(1, `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
else
  return 0
end
`)
