package models

import "time"

// BBox is a bounding box in pixel coordinates of the inference input
type BBox struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// Detection is one object candidate returned by the inference endpoint
type Detection struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

// InferenceResponse is the body of POST /infer
type InferenceResponse struct {
	OK         bool        `json:"ok"`
	Model      string      `json:"model"`
	PreMs      float64     `json:"pre_ms"`
	InvokeMs   float64     `json:"invoke_ms"`
	TotalMs    float64     `json:"total_ms"`
	Detections []Detection `json:"detections"`
}

// LabeledDetection is a surviving detection with its resolved label
type LabeledDetection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

// AggregationResult is what one cycle derives from a detection list
type AggregationResult struct {
	TopLabel      string             `json:"top_label"`
	TopScore      float64            `json:"top_score"`
	Counts        map[string]int     `json:"counts"`
	TopDetections []LabeledDetection `json:"top_detections"`
	PersonCount   int                `json:"person_count"`
	Survivors     int                `json:"survivors"`
}

// CaptureResult describes the device/format combination that produced a still
type CaptureResult struct {
	Device string `json:"device"`
	Format string `json:"format"`
	Path   string `json:"-"`
}

// Metric is one state-store entity update
type Metric struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// PublishBatch groups the metrics of one cycle. Every metric is sent with the same
// Attributes map.
type PublishBatch struct {
	Metrics    []Metric       `json:"metrics"`
	Attributes map[string]any `json:"attributes"`
}

type CycleStage string

const (
	StageCapture   CycleStage = "capture"
	StageInference CycleStage = "inference"
	StagePublish   CycleStage = "publish"
	StageDone      CycleStage = "done"
)

// CycleReport is the outcome of one capture → infer → aggregate → publish pass
type CycleReport struct {
	RunID     string             `json:"run_id"`
	Seq       uint64             `json:"seq"`
	StartedAt time.Time          `json:"started_at"`
	Elapsed   time.Duration      `json:"elapsed"`
	Stage     CycleStage         `json:"stage"`
	Error     string             `json:"error,omitempty"`
	Capture   *CaptureResult     `json:"capture,omitempty"`
	Inference *InferenceResponse `json:"inference,omitempty"`
	Result    *AggregationResult `json:"result,omitempty"`
	Batch     *PublishBatch      `json:"batch,omitempty"`
}

// Failed reports whether the cycle stopped before completing every stage
func (r *CycleReport) Failed() bool {
	return r.Stage != StageDone
}
