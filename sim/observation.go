package sim

import "math"

// ObsFieldsPerTarget is the width of one target's block in an Observation
const ObsFieldsPerTarget = 5

// Observation is the flat [x, y, angle, distance, speed] vector, one block per
// target in storage order.
type Observation []float32

// TargetObs is one decoded block of an Observation
type TargetObs struct {
	X, Y     float32
	Angle    float32
	Distance float32
	Speed    float32
}

// Encode builds the observation for the current target positions
func Encode(targets *TargetSet) Observation {
	obs := make(Observation, 0, targets.Len()*ObsFieldsPerTarget)
	for i := 0; i < targets.Len(); i++ {
		t := targets.At(i)
		x, y := t.Position()
		obs = append(obs,
			float32(x),
			float32(y),
			float32(t.Heading()),
			float32(math.Sqrt(x*x+y*y)),
			float32(t.Speed),
		)
	}
	return obs
}

// NumTargets returns how many target blocks the observation carries
func (o Observation) NumTargets() int {
	return len(o) / ObsFieldsPerTarget
}

// Target decodes block i
func (o Observation) Target(i int) TargetObs {
	b := o[i*ObsFieldsPerTarget : (i+1)*ObsFieldsPerTarget]
	return TargetObs{X: b[0], Y: b[1], Angle: b[2], Distance: b[3], Speed: b[4]}
}

// Float64s widens the observation for callers doing float64 math
func (o Observation) Float64s() []float64 {
	out := make([]float64, len(o))
	for i, v := range o {
		out[i] = float64(v)
	}
	return out
}
