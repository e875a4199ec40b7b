package luma

import (
	"math"
	"sort"

	"github.com/verte-zerg/evmeter/internal/model"
)

const (
	// NeutralLuma is reported when a frame has no usable samples.
	NeutralLuma = 0.5

	gridTarget     = 80
	centerWeight   = 0.7
	outerWeight    = 0.3
	minSpotHalf    = 4
	spotHalfDivide = 30
	spotStepDivide = 6
)

// Steps returns the decimation steps used for whole-frame scans.
func Steps(width, height int) (stepX, stepY int) {
	return maxInt(1, width/gridTarget), maxInt(1, height/gridTarget)
}

// Sample computes the zone statistics of frame. spot is a normalized point;
// out-of-range or NaN coordinates are clamped.
func Sample(frame Frame, spot model.Point) model.MeteringSample {
	if !frame.Valid() {
		return neutralSample()
	}
	stepX, stepY := Steps(frame.Width, frame.Height)

	avg, center := scanFrame(frame, stepX, stepY)
	grid, median := scanGrid(frame, stepX, stepY, avg)

	return model.MeteringSample{
		Average:        avg,
		MatrixMedian:   median,
		Grid:           grid,
		CenterWeighted: center,
		Spot:           scanSpot(frame, spot, avg),
	}
}

// scanFrame computes the full-frame average and the center-weighted blend
// from the same decimated pass.
func scanFrame(f Frame, stepX, stepY int) (avg, centerWeighted float64) {
	cx, cy := f.Width/2, f.Height/2
	radius := minInt(f.Width, f.Height) / 4
	r2 := radius * radius

	var sum, sumC, sumO float64
	var cnt, cntC, cntO int
	for y := 0; y < f.Height; y += stepY {
		row := f.Pix[y*f.Stride:]
		dy := y - cy
		for x := 0; x < f.Width; x += stepX {
			v := float64(row[x])
			sum += v
			cnt++
			dx := x - cx
			if dx*dx+dy*dy <= r2 {
				sumC += v
				cntC++
			} else {
				sumO += v
				cntO++
			}
		}
	}
	if cnt == 0 {
		return NeutralLuma, NeutralLuma
	}
	avg = sum / float64(cnt) / 255.0

	c, o := avg, avg
	if cntC > 0 {
		c = sumC / float64(cntC) / 255.0
	}
	if cntO > 0 {
		o = sumO / float64(cntO) / 255.0
	}
	return avg, centerWeight*c + outerWeight*o
}

// scanGrid splits the frame into GridSize x GridSize cells. The last row and
// column absorb the remainder pixels. Empty cells report fallback.
func scanGrid(f Frame, stepX, stepY int, fallback float64) ([model.GridSize][model.GridSize]float64, float64) {
	var grid [model.GridSize][model.GridSize]float64
	cellW := maxInt(1, f.Width/model.GridSize)
	cellH := maxInt(1, f.Height/model.GridSize)

	means := make([]float64, 0, model.GridSize*model.GridSize)
	for r := 0; r < model.GridSize; r++ {
		ymin := r * cellH
		ymax := minInt(f.Height, ymin+cellH)
		if r == model.GridSize-1 {
			ymax = f.Height
		}
		for c := 0; c < model.GridSize; c++ {
			xmin := c * cellW
			xmax := minInt(f.Width, xmin+cellW)
			if c == model.GridSize-1 {
				xmax = f.Width
			}
			mean := regionMean(f, xmin, xmax, ymin, ymax, stepX, stepY, fallback)
			grid[r][c] = mean
			means = append(means, mean)
		}
	}
	sort.Float64s(means)
	return grid, means[len(means)/2]
}

func scanSpot(f Frame, p model.Point, fallback float64) float64 {
	px := int(clampUnit(p.X) * float64(f.Width))
	py := int(clampUnit(p.Y) * float64(f.Height))
	half := maxInt(minSpotHalf, minInt(f.Width, f.Height)/spotHalfDivide)
	step := maxInt(1, half/spotStepDivide)

	xmin, xmax := maxInt(0, px-half), minInt(f.Width, px+half)
	ymin, ymax := maxInt(0, py-half), minInt(f.Height, py+half)
	return regionMean(f, xmin, xmax, ymin, ymax, step, step, fallback)
}

func regionMean(f Frame, xmin, xmax, ymin, ymax, stepX, stepY int, fallback float64) float64 {
	var sum float64
	var cnt int
	for y := ymin; y < ymax; y += stepY {
		row := f.Pix[y*f.Stride:]
		for x := xmin; x < xmax; x += stepX {
			sum += float64(row[x])
			cnt++
		}
	}
	if cnt == 0 {
		return fallback
	}
	return sum / float64(cnt) / 255.0
}

func neutralSample() model.MeteringSample {
	s := model.MeteringSample{
		Average:        NeutralLuma,
		MatrixMedian:   NeutralLuma,
		CenterWeighted: NeutralLuma,
		Spot:           NeutralLuma,
	}
	for r := range s.Grid {
		for c := range s.Grid[r] {
			s.Grid[r][c] = NeutralLuma
		}
	}
	return s
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Min(1, math.Max(0, v))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
