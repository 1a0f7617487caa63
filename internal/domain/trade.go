package domain

// Trade is a single buy or sell fill on a market. Immutable once created.
type Trade struct {
	ID           string  `json:"id"`
	MarketID     string  `json:"marketId"`
	Timestamp    int64   `json:"timestamp"` // unix seconds
	IsBuy        bool    `json:"isBuy"`
	Price        float64 `json:"price"`
	TokenAmount  float64 `json:"tokenAmount"`
	NativeAmount float64 `json:"nativeAmount"`
}

// Position is a wallet's holding in one token as reported by the indexer.
type Position struct {
	Account      string  `json:"account"`
	TokenAddress string  `json:"tokenAddress"`
	MarketID     string  `json:"marketId"`
	Symbol       string  `json:"symbol"`
	Balance      float64 `json:"balance"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// WalletTrade is a trade attributed to a wallet.
type WalletTrade struct {
	Trade
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
}
