package aggregate

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/emmatufvesson/relAI/internal/models"
)

func det(id int, score float64) models.Detection {
	return models.Detection{ID: id, Score: score, BBox: models.BBox{XMax: 10, YMax: 10}}
}

func randomDetections(r *rand.Rand, n int) []models.Detection {
	out := make([]models.Detection, n)
	for i := range out {
		out[i] = det(r.Intn(5)-1, float64(r.Intn(101))/100)
	}
	return out
}

func TestSurvivorsMatchThreshold(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		dets := randomDetections(r, r.Intn(30))
		prev := len(dets) + 1
		for _, th := range []float64{0, 0.1, 0.25, 0.4, 0.5, 0.75, 0.9, 1, 1.1} {
			got := Survivors(dets, th)

			want := 0
			for _, d := range dets {
				if d.Score >= th {
					want++
				}
			}
			if len(got) != want {
				t.Fatalf("threshold %v: got %d survivors, want %d", th, len(got), want)
			}
			for _, d := range got {
				if d.Score < th {
					t.Fatalf("threshold %v: survivor with score %v", th, d.Score)
				}
			}
			if len(got) > prev {
				t.Fatalf("raising threshold to %v increased survivors %d -> %d", th, prev, len(got))
			}
			prev = len(got)
		}
	}
}

func TestEmptySurvivorsProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	labelSets := []*LabelMap{
		NewLabelMap(nil),
		NewLabelMap(map[int]string{0: "person", 1: "bicycle"}),
	}

	for round := 0; round < 100; round++ {
		dets := randomDetections(r, r.Intn(20))
		for _, labels := range labelSets {
			res := Aggregate(dets, 1.01, labels)
			if res.TopLabel != NoneLabel || res.TopScore != 0 || len(res.Counts) != 0 || res.PersonCount != 0 {
				t.Fatalf("unexpected result for empty survivors: %+v", res)
			}
			if len(res.TopDetections) != 0 {
				t.Fatalf("expected no top detections, got %d", len(res.TopDetections))
			}
		}
	}
}

func TestAggregatePersonScenario(t *testing.T) {
	labels := NewLabelMap(map[int]string{0: "person"})
	dets := []models.Detection{det(0, 0.9)}

	res := Aggregate(dets, 0.4, labels)
	if res.TopLabel != "person" || res.TopScore != 0.9 || res.PersonCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Counts) != 1 || res.Counts["person"] != 1 {
		t.Errorf("unexpected counts %v", res.Counts)
	}

	res = Aggregate(dets, 0.95, labels)
	if res.TopLabel != NoneLabel || res.TopScore != 0 || res.PersonCount != 0 || len(res.Counts) != 0 {
		t.Errorf("expected empty aggregation above every score, got %+v", res)
	}
}

func TestAggregateCountsAndTop(t *testing.T) {
	labels := NewLabelMap(map[int]string{0: "Person", 2: "car", 3: "person"})
	dets := []models.Detection{
		det(2, 0.5),
		det(0, 0.8),
		det(2, 0.3),
		det(3, 0.8),
		det(7, 0.95),
		det(0, 0.45),
	}

	res := Aggregate(dets, 0.4, labels)
	if res.TopLabel != "id_7" || res.TopScore != 0.95 {
		t.Errorf("unexpected top %s/%v", res.TopLabel, res.TopScore)
	}
	want := map[string]int{"car": 1, "Person": 2, "person": 1, "id_7": 1}
	if len(res.Counts) != len(want) {
		t.Fatalf("counts = %v, want %v", res.Counts, want)
	}
	for k, v := range want {
		if res.Counts[k] != v {
			t.Errorf("counts[%q] = %d, want %d", k, res.Counts[k], v)
		}
	}
	if res.PersonCount != 3 {
		t.Errorf("person count = %d, want 3", res.PersonCount)
	}
	if res.Survivors != 5 {
		t.Errorf("survivors = %d, want 5", res.Survivors)
	}
}

func TestAggregateTieKeepsFirstInInputOrder(t *testing.T) {
	labels := NewLabelMap(map[int]string{1: "cat", 2: "dog"})

	res := Aggregate([]models.Detection{det(1, 0.7), det(2, 0.7)}, 0.1, labels)
	if res.TopLabel != "cat" {
		t.Errorf("top = %s, want cat", res.TopLabel)
	}
	res = Aggregate([]models.Detection{det(2, 0.7), det(1, 0.7)}, 0.1, labels)
	if res.TopLabel != "dog" {
		t.Errorf("top = %s, want dog", res.TopLabel)
	}
}

func TestAggregatePersonFallbackWithoutLabels(t *testing.T) {
	dets := []models.Detection{det(0, 0.9), det(0, 0.6), det(1, 0.9), det(0, 0.1)}

	res := Aggregate(dets, 0.5, NewLabelMap(nil))
	if res.PersonCount != 2 {
		t.Errorf("person count = %d, want 2", res.PersonCount)
	}
	if res.Counts["id_0"] != 2 || res.Counts["id_1"] != 1 {
		t.Errorf("unexpected counts %v", res.Counts)
	}
}

func TestAggregateTruncatesDetailInReceivedOrder(t *testing.T) {
	var dets []models.Detection
	for i := 0; i < 15; i++ {
		dets = append(dets, det(i, 0.5+float64(i)/100))
	}

	res := Aggregate(dets, 0.4, NewLabelMap(nil))
	if len(res.TopDetections) != MaxTopDetections {
		t.Fatalf("expected %d top detections, got %d", MaxTopDetections, len(res.TopDetections))
	}
	for i, d := range res.TopDetections {
		if d.Label != NewLabelMap(nil).LabelFor(i) {
			t.Errorf("top_detections[%d] = %s, want received order", i, d.Label)
		}
	}
	if res.Survivors != 15 {
		t.Errorf("counts must cover every survivor, got %d", res.Survivors)
	}
}

func TestLabelFor(t *testing.T) {
	labels := NewLabelMap(map[int]string{0: "person", 5: "bus"})

	tests := []struct {
		id   int
		want string
	}{
		{0, "person"},
		{5, "bus"},
		{1, "id_1"},
		{-1, "id_-1"},
		{90, "id_90"},
	}
	for _, tt := range tests {
		if got := labels.LabelFor(tt.id); got != tt.want {
			t.Errorf("LabelFor(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}

	var nilMap *LabelMap
	if got := nilMap.LabelFor(0); got != "id_0" {
		t.Errorf("nil map LabelFor(0) = %q", got)
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coco_labels.txt")
	content := "person\n2  car\n\nbicycle\n5 traffic light\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write labels: %v", err)
	}

	labels := LoadLabels(path)
	// bare labels are numbered among themselves
	want := map[int]string{0: "person", 1: "bicycle", 2: "car", 5: "traffic light"}
	for id, l := range want {
		if got := labels.LabelFor(id); got != l {
			t.Errorf("LabelFor(%d) = %q, want %q", id, got, l)
		}
	}
	if labels.Len() != 4 {
		t.Errorf("Len = %d, want 4", labels.Len())
	}
}

func TestLoadLabelsBare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("person\nbicycle\ncar\n"), 0o644); err != nil {
		t.Fatalf("write labels: %v", err)
	}

	labels := LoadLabels(path)
	for id, l := range []string{"person", "bicycle", "car"} {
		if got := labels.LabelFor(id); got != l {
			t.Errorf("LabelFor(%d) = %q, want %q", id, got, l)
		}
	}
}

func TestLoadLabelsMissing(t *testing.T) {
	if l := LoadLabels(""); l.Len() != 0 {
		t.Errorf("expected empty map for empty path")
	}
	if l := LoadLabels(filepath.Join(t.TempDir(), "nope.txt")); l.Len() != 0 {
		t.Errorf("expected empty map for missing file")
	}
}
