package redis

import "github.com/redis/go-redis/v9"

// dequeueScript moves the tail of queued into working.
// KEYS: queued, working, stats. ARGV: deadline ms, item prefix.
// Returns {id, attempts, value, enqueued_at} or false.
var dequeueScript = redis.NewScript(`
local id = redis.call("RPOP", KEYS[1])
if not id then return false end
local ik = ARGV[2] .. id
redis.call("ZADD", KEYS[2], ARGV[1], id)
local attempts = redis.call("HINCRBY", ik, "attempts", 1)
redis.call("HINCRBY", KEYS[3], "dequeued", 1)
local fields = redis.call("HMGET", ik, "value", "enqueued_at")
return {id, attempts, fields[1], fields[2]}`)

// completeScript removes a working entry if attempt is still its current
// delivery.
// KEYS: working, item, stats. ARGV: id, attempt. Returns 1, or 0 if the
// delivery is no longer working.
var completeScript = redis.NewScript(`
if redis.call("HGET", KEYS[2], "attempts") ~= ARGV[2] then return 0 end
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call("DEL", KEYS[2])
redis.call("HINCRBY", KEYS[3], "completed", 1)
return 1`)

// abandonScript moves a working entry to deadletter, delayed or queued if
// attempt is still its current delivery.
// KEYS: working, queued, delayed, deadletter, stats, item.
// ARGV: id, mode ("dead", "delay", "now"), ready ms, extra counter name or "",
// attempt. Returns 1, or 0 if the delivery is no longer working.
var abandonScript = redis.NewScript(`
if redis.call("HGET", KEYS[6], "attempts") ~= ARGV[5] then return 0 end
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then return 0 end
if ARGV[2] == "dead" then
	redis.call("LPUSH", KEYS[4], ARGV[1])
elseif ARGV[2] == "delay" then
	redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
else
	redis.call("LPUSH", KEYS[2], ARGV[1])
end
redis.call("HINCRBY", KEYS[5], "abandoned", 1)
if ARGV[4] ~= "" then redis.call("HINCRBY", KEYS[5], ARGV[4], 1) end
return 1`)

// promoteScript moves due delayed entries to queued.
// KEYS: delayed, queued. ARGV: now ms. Returns the number promoted.
var promoteScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("LPUSH", KEYS[2], id)
end
return #ids`)
