package xredisq

import "github.com/redis/go-redis/v9"

// popDueScript 原子取出 score <= ARGV[1] 的至多 ARGV[2] 个成员。
//
// KEYS[1]: ZSET 键
// ARGV[1]: 当前时间（Unix 毫秒）
// ARGV[2]: 单次上限
var popDueScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #items > 0 then
	redis.call('ZREM', KEYS[1], unpack(items))
end
return items
`)
