package metrics

import (
	"time"

	"media-publisher/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current media store statistics
type Stats struct {
	TotalImages    int
	TotalVideos    int
	PendingRecords int
	TotalBytes     int64
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	MediaRecordsTotal.WithLabelValues("image").Set(float64(stats.TotalImages))
	MediaRecordsTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	MediaPendingRecords.Set(float64(stats.PendingRecords))
	MediaBytesTotal.Set(float64(stats.TotalBytes))

	logging.Debug("Metrics collected: images=%d, videos=%d, pending=%d, bytes=%d",
		stats.TotalImages, stats.TotalVideos, stats.PendingRecords, stats.TotalBytes)
}
