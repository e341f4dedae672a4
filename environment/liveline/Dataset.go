package liveline

import (
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Fractions of the dataset assigned to the train/val/test windows
const (
	trainFraction float64 = 0.7
	valFraction   float64 = 0.15
)

// dataset holds the playback data of a recorded process run: one row
// of output signals per batch produced by the line.
type dataset struct {
	outputs *mat.Dense // numBatches x numOutputs
	batches int
	width   int
}

// newDataset generates a synthetic process dataset. Each output
// channel is a slow drifting signal, a superposition of two
// incommensurate sinusoids, with additive Gaussian measurement noise.
func newDataset(batches, width int, seed uint64) *dataset {
	source := rand.NewSource(seed)
	noise := distuv.Normal{Mu: 0, Sigma: 0.05, Src: source}
	phase := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: source}

	data := mat.NewDense(batches, width, nil)
	for j := 0; j < width; j++ {
		slow := 2 * math.Pi / float64(batches) * (1 + float64(j))
		fast := slow * math.Sqrt(37)
		slowPhase := phase.Rand()
		fastPhase := phase.Rand()

		for i := 0; i < batches; i++ {
			t := float64(i)
			value := 0.6*math.Sin(slow*t+slowPhase) +
				0.25*math.Sin(fast*t+fastPhase) +
				noise.Rand()
			data.Set(i, j, value)
		}
	}

	return &dataset{outputs: data, batches: batches, width: width}
}

// row returns the output signals of batch i
func (d *dataset) row(i int) *mat.VecDense {
	out := make([]float64, d.width)
	mat.Row(out, i, d.outputs)
	return mat.NewVecDense(d.width, out)
}

// window returns the half-open batch interval [lo, hi) available for
// playback under the given data mode and trim margins
func (d *dataset) window(mode DataMode, trimStart, trimEnd int) (int, int) {
	lo := trimStart
	hi := d.batches - trimEnd

	span := hi - lo
	switch mode {
	case Train:
		hi = lo + int(trainFraction*float64(span))
	case Val:
		lo = lo + int(trainFraction*float64(span))
		hi = lo + int(valFraction*float64(span))
	case Test:
		lo = lo + int((trainFraction+valFraction)*float64(span))
	}
	return lo, hi
}

// means returns the per-channel mean outputs over [lo, hi)
func (d *dataset) means(lo, hi int) []float64 {
	out := make([]float64, d.width)
	for j := 0; j < d.width; j++ {
		sum := 0.0
		for i := lo; i < hi; i++ {
			sum += d.outputs.At(i, j)
		}
		out[j] = sum / float64(hi-lo)
	}
	return out
}
