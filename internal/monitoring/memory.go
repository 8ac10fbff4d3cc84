package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

const mb = 1024 * 1024

// MemoryStats is one sample of the runtime memory statistics
type MemoryStats struct {
	Alloc         uint64    `json:"alloc_bytes"`
	TotalAlloc    uint64    `json:"total_alloc_bytes"`
	Sys           uint64    `json:"sys_bytes"`
	Mallocs       uint64    `json:"mallocs"`
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapSys       uint64    `json:"heap_sys_bytes"`
	HeapInuse     uint64    `json:"heap_inuse_bytes"`
	HeapObjects   uint64    `json:"heap_objects"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	NumGC         uint32    `json:"num_gc"`
	NumGoroutine  int       `json:"num_goroutine"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemoryMonitor samples memory usage while large case files are parsed and
// held in the analyzer's file cache. Above gcThreshold it returns freed heap
// to the OS.
type MemoryMonitor struct {
	interval    time.Duration
	gcThreshold uint64
	logger      *Logger

	mu         sync.RWMutex
	current    MemoryStats
	history    []MemoryStats
	maxHistory int
	forcedGCs  int
}

// NewMemoryMonitor creates a new memory monitor
func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, logger *Logger) *MemoryMonitor {
	return &MemoryMonitor{
		interval:    interval,
		gcThreshold: gcThreshold,
		logger:      logger,
		maxHistory:  100,
	}
}

// Start samples until ctx is cancelled
func (mm *MemoryMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	mm.logger.Info("Starting memory monitoring", "interval_ms", mm.interval.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			mm.logger.Info("Memory monitoring stopped")
			return
		case <-ticker.C:
			mm.Sample()
		}
	}
}

// Sample reads the runtime statistics once and records them
func (mm *MemoryMonitor) Sample() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := MemoryStats{
		Alloc:         ms.Alloc,
		TotalAlloc:    ms.TotalAlloc,
		Sys:           ms.Sys,
		Mallocs:       ms.Mallocs,
		HeapAlloc:     ms.HeapAlloc,
		HeapSys:       ms.HeapSys,
		HeapInuse:     ms.HeapInuse,
		HeapObjects:   ms.HeapObjects,
		GCCPUFraction: ms.GCCPUFraction,
		NumGC:         ms.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	mm.mu.Lock()
	mm.current = stats
	mm.history = append(mm.history, stats)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	overThreshold := mm.gcThreshold > 0 && ms.HeapAlloc > mm.gcThreshold
	if overThreshold {
		mm.forcedGCs++
	}
	mm.mu.Unlock()

	if overThreshold {
		start := time.Now()
		debug.FreeOSMemory()
		mm.logger.SystemLogger("memory_released", fmt.Sprintf("heap:%dMB threshold:%dMB took:%v",
			ms.HeapAlloc/mb, mm.gcThreshold/mb, time.Since(start)))
	}
	return stats
}

// HeapAllocMB returns the heap in use at the last sample
func (mm *MemoryMonitor) HeapAllocMB() float64 {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return float64(mm.current.HeapAlloc) / mb
}

// GetStats returns the last sample with derived figures
func (mm *MemoryMonitor) GetStats() map[string]any {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	heapUtilization := float64(0)
	if mm.current.HeapSys > 0 {
		heapUtilization = float64(mm.current.HeapInuse) / float64(mm.current.HeapSys)
	}

	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		first := mm.history[0]
		if dt := mm.current.Timestamp.Sub(first.Timestamp).Seconds(); dt > 0 {
			mallocRate = float64(mm.current.Mallocs-first.Mallocs) / dt
		}
	}

	return map[string]any{
		"alloc_mb":            mm.current.Alloc / mb,
		"heap_alloc_mb":       mm.current.HeapAlloc / mb,
		"heap_sys_mb":         mm.current.HeapSys / mb,
		"heap_objects":        mm.current.HeapObjects,
		"num_gc":              mm.current.NumGC,
		"num_goroutine":       mm.current.NumGoroutine,
		"gc_cpu_fraction":     mm.current.GCCPUFraction,
		"heap_utilization":    heapUtilization,
		"malloc_rate_per_sec": mallocRate,
		"history_count":       len(mm.history),
		"forced_gcs":          mm.forcedGCs,
		"gc_threshold_mb":     mm.gcThreshold / mb,
	}
}

// GetHistory returns the recorded samples, oldest first
func (mm *MemoryMonitor) GetHistory() []MemoryStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]MemoryStats, len(mm.history))
	copy(out, mm.history)
	return out
}
