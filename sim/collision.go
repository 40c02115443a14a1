package sim

// HitRadius is the max bullet-to-target distance that scores
const HitRadius = 5.0

// WithinRadius reports whether two points are strictly closer than r
func WithinRadius(x1, y1, x2, y2, r float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	return dx*dx+dy*dy < r*r
}

// HitReport is the outcome of one collision pass
type HitReport struct {
	Hits    int
	Targets []int // ascending slot indices
}

// Resolve scores every target against the live bullets. A target is credited
// at most once per tick. Bullets survive hits.
func Resolve(targets *TargetSet, bullets *BulletTrack, hitRadius float64) HitReport {
	var report HitReport
	for i := 0; i < targets.Len(); i++ {
		tx, ty := targets.At(i).Position()
		for j := 0; j < bullets.Len(); j++ {
			b := bullets.At(j)
			if WithinRadius(b.X, b.Y, tx, ty, hitRadius) {
				report.Hits++
				report.Targets = append(report.Targets, i)
				break
			}
		}
	}
	return report
}
