package domain

// PricePoint is a traded price at a unix time.
type PricePoint struct {
	Timestamp int64
	Price     float64
}

// AlignCloses places ascending points into count buckets of step seconds
// starting at from. Each bucket takes the last price before its end;
// empty buckets carry the previous close and leading ones are zero.
func AlignCloses(points []PricePoint, from, step int64, count int) []float64 {
	out := make([]float64, count)
	var last float64
	j := 0
	for i := 0; i < count; i++ {
		end := from + int64(i+1)*step
		for j < len(points) && points[j].Timestamp < end {
			last = points[j].Price
			j++
		}
		out[i] = last
	}
	return out
}
