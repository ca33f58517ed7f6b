package aggregate

import (
	"strings"

	"github.com/samber/lo"

	"github.com/emmatufvesson/relAI/internal/models"
)

const (
	// NoneLabel is the top label of a cycle with no surviving detections
	NoneLabel = "none"
	// PersonLabel is matched case-insensitively for the person count
	PersonLabel = "person"
	// MaxTopDetections caps the detection list carried in published attributes
	MaxTopDetections = 10
)

// Survivors keeps the detections scoring at or above threshold, in input order
func Survivors(dets []models.Detection, threshold float64) []models.Detection {
	return lo.Filter(dets, func(d models.Detection, _ int) bool {
		return d.Score >= threshold
	})
}

// Aggregate filters dets by threshold and derives the published figures.
//
// When several survivors share the highest score the first one in input order wins. The
// inference server does not promise any particular order, so ties are not stable across
// servers.
func Aggregate(dets []models.Detection, threshold float64, labels *LabelMap) models.AggregationResult {
	survivors := Survivors(dets, threshold)

	res := models.AggregationResult{
		TopLabel:      NoneLabel,
		Counts:        map[string]int{},
		TopDetections: []models.LabeledDetection{},
		Survivors:     len(survivors),
	}

	labeled := lo.Map(survivors, func(d models.Detection, _ int) models.LabeledDetection {
		return models.LabeledDetection{Label: labels.LabelFor(d.ID), Score: d.Score, BBox: d.BBox}
	})

	if len(labeled) > 0 {
		top := lo.MaxBy(labeled, func(a, b models.LabeledDetection) bool {
			return a.Score > b.Score
		})
		res.TopLabel = top.Label
		res.TopScore = top.Score
	}

	res.Counts = lo.CountValuesBy(labeled, func(d models.LabeledDetection) string {
		return d.Label
	})

	if labels.Len() > 0 {
		for label, c := range res.Counts {
			if strings.EqualFold(label, PersonLabel) {
				res.PersonCount += c
			}
		}
	} else {
		res.PersonCount = lo.CountBy(survivors, func(d models.Detection) bool {
			return d.ID == 0
		})
	}

	if len(labeled) > MaxTopDetections {
		labeled = labeled[:MaxTopDetections]
	}
	res.TopDetections = labeled

	return res
}
