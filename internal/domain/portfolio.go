package domain

// PortfolioDataPoint is the valuation of a wallet at one time bucket.
type PortfolioDataPoint struct {
	Time      string  `json:"time"`      // bucket label
	Timestamp int64   `json:"timestamp"` // unix seconds
	Value     float64 `json:"value"`
}

// HasValue reports whether any point carries a positive value.
func HasValue(points []PortfolioDataPoint) bool {
	for _, p := range points {
		if p.Value > 0 {
			return true
		}
	}
	return false
}
