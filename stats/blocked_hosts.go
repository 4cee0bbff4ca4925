package stats

import (
	"container/heap"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const defaultShardCount = 16

// BlockedHostsTracker 统计被拦截次数最多的主机名
type BlockedHostsTracker struct {
	shards      []*blockedHostShard
	maxPerShard int
}

type blockedHostShard struct {
	mu    sync.RWMutex
	hosts map[string]*int64
}

// BlockedHostCount 用于排序的结构体
type BlockedHostCount struct {
	Host  string `json:"host"`
	Count int64  `json:"count"`
}

// NewBlockedHostsTracker creates a tracker that remembers at most maxHosts
// distinct hosts. Hosts beyond the limit are not counted.
func NewBlockedHostsTracker(maxHosts int) *BlockedHostsTracker {
	if maxHosts <= 0 {
		maxHosts = 10000
	}
	perShard := maxHosts / defaultShardCount
	if perShard < 1 {
		perShard = 1
	}
	t := &BlockedHostsTracker{
		shards:      make([]*blockedHostShard, defaultShardCount),
		maxPerShard: perShard,
	}
	for i := range t.shards {
		t.shards[i] = &blockedHostShard{hosts: make(map[string]*int64)}
	}
	return t
}

func (t *BlockedHostsTracker) shardFor(host string) *blockedHostShard {
	h := fnv.New32a()
	h.Write([]byte(host))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// RecordBlock 记录被拦截的主机名
func (t *BlockedHostsTracker) RecordBlock(host string) {
	if host == "" {
		return
	}
	shard := t.shardFor(host)

	// Fast path: check if exists
	shard.mu.RLock()
	counter, exists := shard.hosts[host]
	shard.mu.RUnlock()
	if exists {
		atomic.AddInt64(counter, 1)
		return
	}

	// Slow path: create new entry
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if counter, exists = shard.hosts[host]; exists {
		atomic.AddInt64(counter, 1)
		return
	}
	if len(shard.hosts) < t.maxPerShard {
		n := int64(1)
		shard.hosts[host] = &n
	}
}

// GetTopBlockedHosts 获取被拦截最多的主机名，按次数降序、主机名升序
func (t *BlockedHostsTracker) GetTopBlockedHosts(k int) []BlockedHostCount {
	if k <= 0 {
		return nil
	}

	// Use MinHeap to find Top-K
	h := &blockedMinHeap{}
	heap.Init(h)

	for _, shard := range t.shards {
		shard.mu.RLock()
		for host, counter := range shard.hosts {
			count := atomic.LoadInt64(counter)
			if h.Len() < k {
				heap.Push(h, BlockedHostCount{Host: host, Count: count})
				continue
			}
			top := (*h)[0]
			if count > top.Count || (count == top.Count && host < top.Host) {
				heap.Pop(h)
				heap.Push(h, BlockedHostCount{Host: host, Count: count})
			}
		}
		shard.mu.RUnlock()
	}

	// Convert to sorted array (descending)
	result := make([]BlockedHostCount, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(BlockedHostCount)
	}
	return result
}

func (t *BlockedHostsTracker) Reset() {
	for _, shard := range t.shards {
		shard.mu.Lock()
		shard.hosts = make(map[string]*int64)
		shard.mu.Unlock()
	}
}

// blockedMinHeap implementation
type blockedMinHeap []BlockedHostCount

func (h blockedMinHeap) Len() int { return len(h) }
func (h blockedMinHeap) Less(i, j int) bool {
	if h[i].Count != h[j].Count {
		return h[i].Count < h[j].Count
	}
	return h[i].Host > h[j].Host // Higher host is "smaller/worse" in min-heap
}
func (h blockedMinHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *blockedMinHeap) Push(x interface{}) {
	*h = append(*h, x.(BlockedHostCount))
}

func (h *blockedMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
