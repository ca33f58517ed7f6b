package homeassistant

import (
	"math"
	"strconv"
	"strings"

	"github.com/emmatufvesson/relAI/internal/models"
)

// VisionEntities names the entities the vision loop writes
type VisionEntities struct {
	TopLabel    string
	TopScore    string
	PersonCount string
	TotalMs     string
}

// BuildVisionBatch derives the four vision metrics of one cycle. They all share one
// attribute map so the entities describe the same snapshot.
func BuildVisionBatch(
	res models.AggregationResult,
	inf *models.InferenceResponse,
	capture *models.CaptureResult,
	minScore float64,
	entities VisionEntities,
) models.PublishBatch {
	attrs := map[string]any{
		"min_score":      minScore,
		"counts":         res.Counts,
		"top_detections": res.TopDetections,
	}

	var totalMs float64
	if inf != nil {
		attrs["model"] = inf.Model
		attrs["pre_ms"] = inf.PreMs
		attrs["invoke_ms"] = inf.InvokeMs
		attrs["total_ms"] = inf.TotalMs
		totalMs = inf.TotalMs
	}
	if capture != nil {
		attrs["video_dev_used"] = capture.Device
		attrs["snap_format_used"] = capture.Format
	}

	return models.PublishBatch{
		Metrics: []models.Metric{
			{EntityID: entities.TopLabel, State: res.TopLabel},
			{EntityID: entities.TopScore, State: FormatFloat(res.TopScore, 3)},
			{EntityID: entities.PersonCount, State: strconv.Itoa(res.PersonCount)},
			{EntityID: entities.TotalMs, State: FormatFloat(totalMs, 2)},
		},
		Attributes: attrs,
	}
}

// FormatFloat rounds v to the given number of decimals and drops trailing zeros, keeping
// at least one decimal so whole values read as "3.0"
func FormatFloat(v float64, decimals int) string {
	p := math.Pow(10, float64(decimals))
	s := strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
