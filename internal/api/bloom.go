package api

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	visitorBloomBits   = 1 << 20
	visitorBloomHashes = 4
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数（控制误判率与写入开销）。
// 背景：使用 FNV64a 结合索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 检查全部位，任一为 0 时写入全部位并续期；返回 1 表示首次见到
var bloomScript = redis.NewScript(`
local n = #ARGV - 1
for i = 1, n do
  if redis.call('GETBIT', KEYS[1], ARGV[i]) == 0 then
    for j = 1, n do
      redis.call('SETBIT', KEYS[1], ARGV[j], 1)
    end
    redis.call('EXPIRE', KEYS[1], ARGV[n + 1])
    return 1
  end
end
return 0
`)

// 文档注释：检查并写入布隆过滤器位图
// 背景：按“数据集+日期”分桶记录访客，首次出现的访客计入当日访客数；误判只会少计，不会多计。
// 约束：检查与写入在同一个 Lua 脚本内完成，同一访客的并发首个请求只有一个返回 true。
// 返回：true 表示首次见到（已写入位图）；false 表示已存在。
// 异常：Redis 交互错误时返回 error；rc 为 nil 时视为“已见过”，不产生访客计数。
func bloomCheckAndSet(ctx context.Context, rc *redis.Client, key string, positions []int64, ttl time.Duration) (bool, error) {
	if rc == nil {
		return false, nil
	}
	args := make([]interface{}, 0, len(positions)+1)
	for _, p := range positions {
		args = append(args, p)
	}
	args = append(args, int64(ttl/time.Second))
	n, err := bloomScript.Run(ctx, rc, []string{key}, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// firstVisit 判断访客今日是否首次查询该数据集
func firstVisit(ctx context.Context, rc *redis.Client, dataset, visitor string, now time.Time) bool {
	if rc == nil || visitor == "" {
		return false
	}
	key := "tinshift:visitors:" + dataset + ":" + now.Format("20060102")
	ok, err := bloomCheckAndSet(ctx, rc, key, bloomPositions([]byte(visitor), visitorBloomBits, visitorBloomHashes), 48*time.Hour)
	if err != nil {
		return false
	}
	return ok
}
