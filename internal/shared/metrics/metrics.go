package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsStartedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	scansTotal         atomic.Uint64
	scanFailuresTotal  atomic.Uint64

	batchDrainsTotal         atomic.Uint64
	batchItemsProcessedTotal atomic.Uint64
	batchItemsSkippedTotal   atomic.Uint64
	batchItemsFailedTotal    atomic.Uint64

	workerMessagesReceived  atomic.Uint64
	workerMessagesCompleted atomic.Uint64
	workerMessagesFailed    atomic.Uint64
	workerMessagesDropped   atomic.Uint64

	jobDuration = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000})
)

// IncJobsStarted increments the started counter.
func IncJobsStarted() { jobsStartedTotal.Add(1) }

// IncJobsCompleted increments the completed counter.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed increments the failed counter.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncScans counts scan passes; failed marks passes aborted by discovery errors.
func IncScans(failed bool) {
	scansTotal.Add(1)
	if failed {
		scanFailuresTotal.Add(1)
	}
}

// IncBatchDrains counts drains that actually ran (no-op triggers excluded).
func IncBatchDrains() { batchDrainsTotal.Add(1) }

// AddBatchOutcomes records per-item drain outcomes.
func AddBatchOutcomes(processed, skipped, failed int) {
	batchItemsProcessedTotal.Add(uint64(processed))
	batchItemsSkippedTotal.Add(uint64(skipped))
	batchItemsFailedTotal.Add(uint64(failed))
}

// IncWorkerMessagesReceived increments the received counter for queue-triggered analyses.
func IncWorkerMessagesReceived() { workerMessagesReceived.Add(1) }

// IncWorkerMessagesCompleted increments the completed counter for queue-triggered analyses.
func IncWorkerMessagesCompleted() { workerMessagesCompleted.Add(1) }

// IncWorkerMessagesFailed increments the failed counter for queue-triggered analyses.
func IncWorkerMessagesFailed() { workerMessagesFailed.Add(1) }

// IncWorkerMessagesDropped counts unrecoverable messages deleted without processing.
func IncWorkerMessagesDropped() { workerMessagesDropped.Add(1) }

// ObserveJobDurationMs records a job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_jobs_started_total", "Total analysis jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "inventory_scans_total", "Total inventory scan passes", scansTotal.Load())
	writeCounter(&buf, "inventory_scan_failures_total", "Inventory scans aborted by discovery errors", scanFailuresTotal.Load())
	writeCounter(&buf, "commentary_batch_drains_total", "Commentary batch drains executed", batchDrainsTotal.Load())
	writeCounter(&buf, "commentary_batch_items_processed_total", "Commentary batch items processed", batchItemsProcessedTotal.Load())
	writeCounter(&buf, "commentary_batch_items_skipped_total", "Commentary batch items skipped", batchItemsSkippedTotal.Load())
	writeCounter(&buf, "commentary_batch_items_failed_total", "Commentary batch items failed", batchItemsFailedTotal.Load())
	writeCounter(&buf, "worker_messages_received_total", "Queue messages received", workerMessagesReceived.Load())
	writeCounter(&buf, "worker_messages_completed_total", "Queue messages completed", workerMessagesCompleted.Load())
	writeCounter(&buf, "worker_messages_failed_total", "Queue messages failed", workerMessagesFailed.Load())
	writeCounter(&buf, "worker_messages_dropped_total", "Queue messages dropped as unrecoverable", workerMessagesDropped.Load())
	writeHistogram(&buf, "analysis_job_duration_ms", "Analysis job duration in milliseconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket whose bound it does not exceed.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
