// Package geometry converts between the three bounding box conventions used by the
// pipeline: corner pairs (x1,y1,x2,y2), COCO top-left plus size (x,y,w,h) and YOLO
// normalized center plus size (cx,cy,w,h). All other packages go through here for
// coordinate math.
package geometry

import "github.com/menta2k/bddconv/pkg/types"

// CornersToCocoXYWH converts a corner pair to COCO top-left plus size
func CornersToCocoXYWH(x1, y1, x2, y2 float64) (x, y, w, h float64) {
	return x1, y1, x2 - x1, y2 - y1
}

// CocoXYWHToYoloNorm converts a COCO box to a YOLO box normalized by the image
// size. Each component is clamped to [0,1].
func CocoXYWHToYoloNorm(x, y, w, h float64, imgW, imgH int) (cx, cy, nw, nh float64) {
	fw, fh := float64(imgW), float64(imgH)
	cx = Clamp((x+w/2)/fw, 0, 1)
	cy = Clamp((y+h/2)/fh, 0, 1)
	nw = Clamp(w/fw, 0, 1)
	nh = Clamp(h/fh, 0, 1)
	return cx, cy, nw, nh
}

// YoloNormToCorners converts a normalized YOLO box back to pixel corners
func YoloNormToCorners(cx, cy, w, h float64, imgW, imgH int) (x1, y1, x2, y2 float64) {
	fw, fh := float64(imgW), float64(imgH)
	x1 = (cx - w/2) * fw
	y1 = (cy - h/2) * fh
	x2 = (cx + w/2) * fw
	y2 = (cy + h/2) * fh
	return x1, y1, x2, y2
}

// BoxFromCoco is CocoXYWHToYoloNorm returning a types.Box
func BoxFromCoco(bbox [4]float64, imgW, imgH int) types.Box {
	cx, cy, w, h := CocoXYWHToYoloNorm(bbox[0], bbox[1], bbox[2], bbox[3], imgW, imgH)
	return types.Box{Cx: cx, Cy: cy, W: w, H: h}
}

// Degenerate reports a box with no area. Such boxes are kept in COCO and
// tabular outputs but never become YOLO training targets.
func Degenerate(w, h float64) bool {
	return w <= 0 || h <= 0
}

// Area returns w*h
func Area(w, h float64) float64 {
	return w * h
}

// Clamp ensures a value is within the given bounds
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
