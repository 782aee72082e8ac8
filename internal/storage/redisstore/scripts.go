package redisstore

import "github.com/redis/go-redis/v9"

// Every state change that reads before it writes runs as a script, so Redis
// executes it without interleaving. That gives the claim the same
// exactly-once property a locking read gives the relational store.

// KEYS[1]=pending  ARGV[1]=job key prefix  ARGV[2]=worker id  ARGV[3]=now
var luaClaim = redis.NewScript(`
local ids = redis.call("ZRANGE", KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call("ZREM", KEYS[1], id)
redis.call("HSET", ARGV[1] .. id, "status", "processing", "worker_id", ARGV[2], "updated_at", ARGV[3])
return id`)

// KEYS[1]=job  KEYS[2]=pending  KEYS[3]=terminal
// ARGV[1]=id  ARGV[2]=terminal score  ARGV[3]=comma-separated source statuses
// ARGV[4]=number of field/value pairs, then the pairs, then fields to remove.
var luaFinish = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return "missing"
end
local status = redis.call("HGET", KEYS[1], "status") or ""
local allowed = false
for source in string.gmatch(ARGV[3], "[^,]+") do
	if source == status then
		allowed = true
	end
end
if not allowed then
	return status
end
local i = 5
for _ = 1, tonumber(ARGV[4]) do
	redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
	i = i + 2
end
while i <= #ARGV do
	redis.call("HDEL", KEYS[1], ARGV[i])
	i = i + 1
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
return "ok"`)

// KEYS[1]=job  KEYS[2]=pending  KEYS[3]=terminal  KEYS[4]=all  ARGV[1]=id
var luaGetAndDelete = redis.NewScript(`
local fields = redis.call("HGETALL", KEYS[1])
if #fields == 0 then
	return false
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
redis.call("ZREM", KEYS[4], ARGV[1])
return fields`)

// KEYS[1]=terminal  KEYS[2]=all  ARGV[1]=cutoff score (exclusive)  ARGV[2]=job key prefix
var luaCleanup = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
for _, id in ipairs(ids) do
	redis.call("DEL", ARGV[2] .. id)
	redis.call("ZREM", KEYS[1], id)
	redis.call("ZREM", KEYS[2], id)
end
return #ids`)

// KEYS[1]=job  KEYS[2]=terminal  ARGV[1]=now  ARGV[2]=score  ARGV[3]=id
var luaMarkDelivered = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
if redis.call("HGET", KEYS[1], "webhook_delivered") == "1" then
	return 0
end
redis.call("HSET", KEYS[1], "webhook_delivered", "1", "updated_at", ARGV[1])
if redis.call("ZSCORE", KEYS[2], ARGV[3]) then
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
end
return 1`)
