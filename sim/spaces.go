package sim

// Box is a bounded continuous space
type Box struct {
	Low  []float32 `json:"low" msgpack:"low"`
	High []float32 `json:"high" msgpack:"high"`
}

// Contains reports whether v has the box's shape and lies inside it
func (b Box) Contains(v []float32) bool {
	if len(v) != len(b.Low) {
		return false
	}
	for i, x := range v {
		if x < b.Low[i] || x > b.High[i] {
			return false
		}
	}
	return true
}

// ObservationSpace returns the declared bounds for n targets
func ObservationSpace(n int) Box {
	low := []float32{-WorldBound, -WorldBound, 0, 0, 0}
	high := []float32{WorldBound, WorldBound, 360, 2 * WorldBound, 10}
	box := Box{
		Low:  make([]float32, 0, n*ObsFieldsPerTarget),
		High: make([]float32, 0, n*ObsFieldsPerTarget),
	}
	for i := 0; i < n; i++ {
		box.Low = append(box.Low, low...)
		box.High = append(box.High, high...)
	}
	return box
}

// ActionSpace describes what Step accepts
type ActionSpace struct {
	Mode   string    `json:"mode" msgpack:"mode"`
	N      int       `json:"n,omitempty" msgpack:"n,omitempty"`          // discrete choices
	Angles []float64 `json:"angles,omitempty" msgpack:"angles,omitempty"` // discrete angle table
	Low    float64   `json:"low" msgpack:"low"`
	High   float64   `json:"high" msgpack:"high"`
}
