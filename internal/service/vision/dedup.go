package vision

import (
	"image"

	"aerialcapture/internal/dto"
)

// Deduplicator merges near-duplicate boxes and drops boxes mostly contained in another.
type Deduplicator struct {
	MergeIoU    float64 // boxes whose IoU with a group seed exceeds this join the group
	InsideRatio float64 // a box with more than this fraction of its area inside a survivor is dropped
}

// NewDeduplicator returns a Deduplicator with the given thresholds.
func NewDeduplicator(mergeIoU, insideRatio float64) *Deduplicator {
	return &Deduplicator{MergeIoU: mergeIoU, InsideRatio: insideRatio}
}

// Deduplicate repeats MergeOnce until the set stops shrinking, so the result is stable under
// another call. The first pass is exactly MergeOnce, later passes only run when grown unions
// still overlap or contain each other.
func (d *Deduplicator) Deduplicate(detections []dto.Detection) []image.Rectangle {
	boxes := make([]image.Rectangle, 0, len(detections))
	for _, det := range detections {
		boxes = append(boxes, det.Box)
	}
	return d.DeduplicateBoxes(boxes)
}

// DeduplicateBoxes is Deduplicate over bare rectangles.
func (d *Deduplicator) DeduplicateBoxes(boxes []image.Rectangle) []image.Rectangle {
	out := d.MergeOnce(boxes)
	for {
		next := d.MergeOnce(out)
		if len(next) == len(out) {
			return next
		}
		out = next
	}
}

// MergeOnce runs one grouping pass and one containment pass.
//
// Grouping is seeded from the first unclaimed box, in input order, and only pulls in boxes that
// overlap the seed itself. Each group collapses to its union.
func (d *Deduplicator) MergeOnce(boxes []image.Rectangle) []image.Rectangle {
	if len(boxes) == 0 {
		return []image.Rectangle{}
	}

	used := make([]bool, len(boxes))
	merged := make([]image.Rectangle, 0, len(boxes))
	for i := range boxes {
		if used[i] {
			continue
		}
		group := []image.Rectangle{boxes[i]}
		for j := i + 1; j < len(boxes); j++ {
			if used[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > d.MergeIoU {
				group = append(group, boxes[j])
				used[j] = true
			}
		}
		used[i] = true
		merged = append(merged, Union(group))
	}

	return d.dropContained(merged)
}

// dropContained removes a box when more than InsideRatio of it lies inside another live box.
// When two boxes contain each other past the threshold the smaller one goes; on equal area the
// earlier one is kept. No two survivors are left in a containment relation.
func (d *Deduplicator) dropContained(boxes []image.Rectangle) []image.Rectangle {
	dropped := make([]bool, len(boxes))
	for i := range boxes {
		for j := range boxes {
			if i == j || dropped[j] {
				continue
			}
			if InsideRatio(boxes[i], boxes[j]) <= d.InsideRatio {
				continue
			}
			ai, aj := area(boxes[i]), area(boxes[j])
			if ai < aj || (ai == aj && i > j) {
				dropped[i] = true
				break
			}
		}
	}

	keep := make([]image.Rectangle, 0, len(boxes))
	for i, b := range boxes {
		if !dropped[i] {
			keep = append(keep, b)
		}
	}
	return keep
}
