package stats

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"zillafilter/logger"
)

// Stats 拦截管线运行统计
type Stats struct {
	handled        int64
	blocked        int64
	allowed        int64
	classifyFailed int64
	fetchFailed    int64

	blockedToday int64
	lastReset    time.Time
	mu           sync.Mutex

	blockedHosts *BlockedHostsTracker
	metrics      *Metrics

	// 启动时间
	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Handled        int64              `json:"handled"`
	Blocked        int64              `json:"blocked"`
	BlockedToday   int64              `json:"blocked_today"`
	Allowed        int64              `json:"allowed"`
	ClassifyFailed int64              `json:"classify_failed"`
	FetchFailed    int64              `json:"fetch_failed"`
	TopBlocked     []BlockedHostCount `json:"top_blocked"`
	UptimeSeconds  int64              `json:"uptime_seconds"`
}

// NewStats 创建新的统计实例
func NewStats(maxTrackedHosts int) *Stats {
	return &Stats{
		lastReset:    time.Now(),
		blockedHosts: NewBlockedHostsTracker(maxTrackedHosts),
		metrics:      NewMetrics(),
		startTime:    time.Now(),
	}
}

// Metrics returns the Prometheus collectors backing these stats.
func (s *Stats) Metrics() *Metrics {
	return s.metrics
}

// RecordBlock counts a blocked request for host.
func (s *Stats) RecordBlock(host, resourceType string) {
	atomic.AddInt64(&s.handled, 1)
	atomic.AddInt64(&s.blocked, 1)

	s.mu.Lock()
	now := time.Now()
	if now.YearDay() != s.lastReset.YearDay() || now.Year() != s.lastReset.Year() {
		atomic.StoreInt64(&s.blockedToday, 0)
		s.lastReset = now
	}
	atomic.AddInt64(&s.blockedToday, 1)
	s.mu.Unlock()

	s.blockedHosts.RecordBlock(host)
	s.metrics.requests.WithLabelValues(DecisionBlock, resourceType).Inc()
}

// RecordAllow counts a request that passed the filter and was relayed.
func (s *Stats) RecordAllow(resourceType string, status int, elapsed time.Duration) {
	atomic.AddInt64(&s.handled, 1)
	atomic.AddInt64(&s.allowed, 1)
	s.metrics.requests.WithLabelValues(DecisionAllow, resourceType).Inc()
	s.metrics.observeFetch(status, elapsed)
}

// RecordClassificationFailure counts a request whose URL could not be classified.
func (s *Stats) RecordClassificationFailure() {
	atomic.AddInt64(&s.handled, 1)
	atomic.AddInt64(&s.classifyFailed, 1)
	s.metrics.requests.WithLabelValues(DecisionInvalid, "").Inc()
}

// RecordFetchFailure counts an allowed request whose upstream fetch failed.
func (s *Stats) RecordFetchFailure(resourceType string, elapsed time.Duration) {
	atomic.AddInt64(&s.handled, 1)
	atomic.AddInt64(&s.allowed, 1)
	atomic.AddInt64(&s.fetchFailed, 1)
	s.metrics.requests.WithLabelValues(DecisionAllow, resourceType).Inc()
	s.metrics.fetchFailures.Inc()
	s.metrics.fetchDuration.Observe(elapsed.Seconds())
}

// GetTopBlockedHosts returns the k most frequently blocked hosts.
func (s *Stats) GetTopBlockedHosts(k int) []BlockedHostCount {
	return s.blockedHosts.GetTopBlockedHosts(k)
}

// GetSnapshot 获取统计快照
func (s *Stats) GetSnapshot(topK int) Snapshot {
	return Snapshot{
		Handled:        atomic.LoadInt64(&s.handled),
		Blocked:        atomic.LoadInt64(&s.blocked),
		BlockedToday:   atomic.LoadInt64(&s.blockedToday),
		Allowed:        atomic.LoadInt64(&s.allowed),
		ClassifyFailed: atomic.LoadInt64(&s.classifyFailed),
		FetchFailed:    atomic.LoadInt64(&s.fetchFailed),
		TopBlocked:     s.blockedHosts.GetTopBlockedHosts(topK),
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
	}
}

// Reset 重置计数器，Prometheus 计数器保持单调递增不受影响
func (s *Stats) Reset() {
	atomic.StoreInt64(&s.handled, 0)
	atomic.StoreInt64(&s.blocked, 0)
	atomic.StoreInt64(&s.blockedToday, 0)
	atomic.StoreInt64(&s.allowed, 0)
	atomic.StoreInt64(&s.classifyFailed, 0)
	atomic.StoreInt64(&s.fetchFailed, 0)
	s.blockedHosts.Reset()
}

// GetSystemStats 获取进程与主机资源使用情况
func (s *Stats) GetSystemStats() map[string]interface{} {
	cpuUsage := 0.0
	cpuUsageCh := make(chan float64, 1)
	go func() {
		usage, err := cpu.Percent(200*time.Millisecond, false)
		if err != nil || len(usage) == 0 {
			logger.Warnf("无法获取 CPU 使用率: %v", err)
			cpuUsageCh <- 0
			return
		}
		cpuUsageCh <- usage[0]
	}()

	// 等待CPU使用率结果，但设置超时避免长时间阻塞
	select {
	case cpuUsage = <-cpuUsageCh:
	case <-time.After(500 * time.Millisecond):
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sysStats := map[string]interface{}{
		"cpu_cores":       runtime.NumCPU(),
		"cpu_usage_pct":   cpuUsage,
		"mem_total_mb":    0,
		"mem_used_mb":     0,
		"mem_usage_pct":   0.0,
		"go_mem_alloc_mb": memStats.Alloc / 1024 / 1024,
		"goroutines":      runtime.NumGoroutine(),
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		logger.Warnf("无法获取内存信息: %v", err)
		return sysStats
	}
	sysStats["mem_total_mb"] = memInfo.Total / 1024 / 1024
	sysStats["mem_used_mb"] = memInfo.Used / 1024 / 1024
	sysStats["mem_usage_pct"] = memInfo.UsedPercent
	return sysStats
}
