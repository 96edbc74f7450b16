// Package model defines the wire types shared by every component of the
// benchmarking worker agent: the device descriptor emitted at registration,
// the job descriptor fetched from the orchestrator, and the result record
// pushed to the results queue. These are the only types that cross a
// process boundary (HTTP, the redis queue, or the measurement child's
// stdout).
package model

import (
	"encoding/json"
	"fmt"
)

// Descriptor identifies a device. Emitted at registration and embedded in
// every result record pushed to the results queue.
type Descriptor struct {
	DeviceName      string  `json:"DeviceName"`
	DeviceOs        string  `json:"DeviceOs"`
	DeviceOsVersion string  `json:"DeviceOsVersion"`
	DeviceYear      *string `json:"DeviceYear,omitempty"`
	Soc             string  `json:"Soc"`
	Ram             int     `json:"Ram"`
	DiscreteGpu     *string `json:"DiscreteGpu,omitempty"`
	VRam            *string `json:"VRam,omitempty"`
	UDID            string  `json:"UDID"`
}

// JobDescriptor is fetched from the orchestrator's job-details endpoint.
type JobDescriptor struct {
	JobID             string  `json:"job_id"`
	CampaignID        *string `json:"campaign_id,omitempty"`
	ModelURL          string  `json:"model_url"`
	ComputeUnit       string  `json:"compute_unit"`
	NumInferenceRuns  int     `json:"num_inference_runs"`
	WorkerID          *string `json:"worker_id,omitempty"`
}

// DefaultNumInferenceRuns is used when a job descriptor omits the field.
const DefaultNumInferenceRuns = 10

// Status values signalled to the orchestrator. Only these two are
// currently sent (spec Open Question (c) leaves room for more, but this
// repo does not invent any).
const (
	StatusActive = "active"
	StatusBusy   = "busy"
)

// Result status values.
const (
	ResultComplete = "Complete"
	ResultFailed   = "Failed"
)

// Result is the record pushed to the results queue: one per consumed job
// id, on both success and failure.
type Result struct {
	Descriptor

	JobID      string  `json:"job_id"`
	CampaignID *string `json:"campaign_id,omitempty"`
	WorkerID   string  `json:"worker_id"`
	Status     string  `json:"status"`
	Remark     string  `json:"remark,omitempty"`

	FileName     string `json:"FileName"`
	FileSize     int64  `json:"FileSize"`
	ComputeUnits string `json:"ComputeUnits"`

	LoadMsMedian  float64 `json:"LoadMsMedian"`
	LoadMsMin     float64 `json:"LoadMsMin"`
	LoadMsMax     float64 `json:"LoadMsMax"`
	LoadMsAverage float64 `json:"LoadMsAverage"`
	LoadMsStdDev  float64 `json:"LoadMsStdDev"`
	LoadMsFirst   float64 `json:"LoadMsFirst"`

	PeakLoadRamUsage      float64 `json:"PeakLoadRamUsage,omitempty"`
	AverageLoadCpuPercent float64 `json:"AverageLoadCpuPercent,omitempty"`

	InferenceMsMedian  float64 `json:"InferenceMsMedian"`
	InferenceMsMin     float64 `json:"InferenceMsMin"`
	InferenceMsMax     float64 `json:"InferenceMsMax"`
	InferenceMsAverage float64 `json:"InferenceMsAverage"`
	InferenceMsStdDev  float64 `json:"InferenceMsStdDev"`
	InferenceMsFirst   float64 `json:"InferenceMsFirst"`

	PeakInferenceRamUsage      float64 `json:"PeakInferenceRamUsage,omitempty"`
	AverageInferenceCpuPercent float64 `json:"AverageInferenceCpuPercent,omitempty"`
}

// SetLoadMetrics fills the LoadMs* fields from a computed MeasurementStats.
func (r *Result) SetLoadMetrics(s MeasurementStats) {
	r.LoadMsMedian = s.Median
	r.LoadMsMin = s.Min
	r.LoadMsMax = s.Max
	r.LoadMsAverage = s.Average
	r.LoadMsStdDev = s.StdDev
	r.LoadMsFirst = s.First
}

// SetInferenceMetrics fills the InferenceMs* fields from a computed
// MeasurementStats.
func (r *Result) SetInferenceMetrics(s MeasurementStats) {
	r.InferenceMsMedian = s.Median
	r.InferenceMsMin = s.Min
	r.InferenceMsMax = s.Max
	r.InferenceMsAverage = s.Average
	r.InferenceMsStdDev = s.StdDev
	r.InferenceMsFirst = s.First
}

// MeasurementStats holds the six timing fields spec §3 requires for a
// phase's samples: Min <= Median <= Max, Average >= Min, StdDev >= 0, and
// First is the first sample taken. Computed by ComputeStats in stats.go
// for the measurement child's infer phase.
type MeasurementStats struct {
	Median  float64 `json:"Median"`
	Min     float64 `json:"Min"`
	Max     float64 `json:"Max"`
	Average float64 `json:"Average"`
	StdDev  float64 `json:"StdDev"`
	First   float64 `json:"First"`
}

// IsZero reports whether no samples were ever recorded (the zero value).
func (m MeasurementStats) IsZero() bool {
	return m == MeasurementStats{}
}

// loadChildOutput and inferChildOutput mirror the measurement child's
// bit-exact stdout protocol: one JSON object with exactly six flat,
// task-prefixed keys, no nesting.
type loadChildOutput struct {
	LoadMsMedian  float64 `json:"LoadMsMedian"`
	LoadMsMin     float64 `json:"LoadMsMin"`
	LoadMsMax     float64 `json:"LoadMsMax"`
	LoadMsAverage float64 `json:"LoadMsAverage"`
	LoadMsStdDev  float64 `json:"LoadMsStdDev"`
	LoadMsFirst   float64 `json:"LoadMsFirst"`
}

type inferChildOutput struct {
	InferenceMsMedian  float64 `json:"InferenceMsMedian"`
	InferenceMsMin     float64 `json:"InferenceMsMin"`
	InferenceMsMax     float64 `json:"InferenceMsMax"`
	InferenceMsAverage float64 `json:"InferenceMsAverage"`
	InferenceMsStdDev  float64 `json:"InferenceMsStdDev"`
	InferenceMsFirst   float64 `json:"InferenceMsFirst"`
}

// MarshalChildOutput renders stats as the measurement child's bit-exact
// stdout JSON for the given task ("load" or "infer"): a flat object with
// exactly the six task-prefixed keys, no other fields.
func MarshalChildOutput(task string, stats MeasurementStats) ([]byte, error) {
	switch task {
	case "load":
		return json.Marshal(loadChildOutput{
			LoadMsMedian:  stats.Median,
			LoadMsMin:     stats.Min,
			LoadMsMax:     stats.Max,
			LoadMsAverage: stats.Average,
			LoadMsStdDev:  stats.StdDev,
			LoadMsFirst:   stats.First,
		})
	case "infer":
		return json.Marshal(inferChildOutput{
			InferenceMsMedian:  stats.Median,
			InferenceMsMin:     stats.Min,
			InferenceMsMax:     stats.Max,
			InferenceMsAverage: stats.Average,
			InferenceMsStdDev:  stats.StdDev,
			InferenceMsFirst:   stats.First,
		})
	default:
		return nil, fmt.Errorf("model: unknown task %q", task)
	}
}

// ParseChildOutput parses the measurement child's bit-exact stdout JSON
// back into a MeasurementStats, given which task produced it.
func ParseChildOutput(task string, raw []byte) (MeasurementStats, error) {
	switch task {
	case "load":
		var out loadChildOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return MeasurementStats{}, fmt.Errorf("model: parse load child output: %w", err)
		}
		return MeasurementStats{
			Median:  out.LoadMsMedian,
			Min:     out.LoadMsMin,
			Max:     out.LoadMsMax,
			Average: out.LoadMsAverage,
			StdDev:  out.LoadMsStdDev,
			First:   out.LoadMsFirst,
		}, nil
	case "infer":
		var out inferChildOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return MeasurementStats{}, fmt.Errorf("model: parse infer child output: %w", err)
		}
		return MeasurementStats{
			Median:  out.InferenceMsMedian,
			Min:     out.InferenceMsMin,
			Max:     out.InferenceMsMax,
			Average: out.InferenceMsAverage,
			StdDev:  out.InferenceMsStdDev,
			First:   out.InferenceMsFirst,
		}, nil
	default:
		return MeasurementStats{}, fmt.Errorf("model: unknown task %q", task)
	}
}

// ChildErrorOutput is the stderr payload the measurement child emits on
// failure: {"error": "<msg>", "task": "<t>"}.
type ChildErrorOutput struct {
	Error string `json:"error"`
	Task  string `json:"task"`
}
