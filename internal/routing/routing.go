// Package routing implements the capability-routing contract shared with
// the orchestrator and the queue broker: how capability strings are
// normalised into queue keys, and how a job's or a worker's queue
// priority list is computed. Every function here is pure — no I/O, no
// broker or HTTP dependency — grounded on
// original_source/core/job_dispatcher.py's determine_queues and
// get_worker_queue_priority.
package routing

import "strings"

// ResultsQueueKey is the single well-known key the results sink lives at.
const ResultsQueueKey = "results"

// Normalise converts a human-readable capability string such as
// "CPU (ONNX)" into its canonical routing form "cpu_onnx": lowercase,
// spaces become underscores, parentheses are dropped. Normalisation is
// total (defined for any input) and, over the set of capability strings
// the device probe emits, injective.
func Normalise(capability string) string {
	s := strings.ToLower(capability)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	return s
}

// WorkerQueueKey returns the personal queue key for a worker id.
func WorkerQueueKey(workerID string) string {
	return "jobs:" + workerID
}

// CapabilityQueueKey returns the capability queue key for a (human-
// readable, not yet normalised) capability string.
func CapabilityQueueKey(capability string) string {
	return "jobs:capability:" + Normalise(capability)
}

// Job is the subset of a job descriptor routing needs — kept minimal and
// decoupled from internal/model so this package has zero dependencies
// beyond the standard library.
type Job struct {
	WorkerID    string // empty if not statically pinned
	ComputeUnit string // empty if not set
}

// QueuesForJob determines which queue(s) a job should be pushed to. A
// statically pinned worker id wins over a capability-based compute unit;
// if neither is set, the job cannot be routed and an empty slice is
// returned (the caller logs a warning, per spec).
func QueuesForJob(job Job) []string {
	if job.WorkerID != "" {
		return []string{WorkerQueueKey(job.WorkerID)}
	}
	if job.ComputeUnit != "" {
		return []string{CapabilityQueueKey(job.ComputeUnit)}
	}
	return nil
}

// QueuesForWorker computes a worker's blocking-pop priority list: its
// personal queue first, then one capability queue per entry in
// capabilities, in the order given (the device probe's preference order),
// with duplicates removed while the first-seen order is preserved.
func QueuesForWorker(workerID string, capabilities []string) []string {
	queues := make([]string, 0, len(capabilities)+1)
	seen := make(map[string]bool, len(capabilities)+1)

	add := func(key string) {
		if seen[key] {
			return
		}
		seen[key] = true
		queues = append(queues, key)
	}

	add(WorkerQueueKey(workerID))
	for _, cap := range capabilities {
		add(CapabilityQueueKey(cap))
	}
	return queues
}
