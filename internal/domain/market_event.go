package domain

// MarketCreated is the decoded router event announcing a new market.
type MarketCreated struct {
	MarketAddress string
	TokenAddress  string
	Name          string
	Symbol        string
	MetadataCID   string
}

// MarketUpdate is the decoded per-trade market update event.
type MarketUpdate struct {
	MarketAddress string
	AmountIn      float64
	AmountOut     float64
	IsBuy         bool
	Price         float64
	BuyCount      int64
	SellCount     int64
	VolumeDelta   float64
}
