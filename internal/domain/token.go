package domain

import "strings"

// TotalSupply is the fixed supply of every launchpad token (whole tokens).
const TotalSupply = 1_000_000_000

// Status is the lifecycle stage of a token on the bonding curve.
type Status string

// Token status constants
const (
	StatusNew        Status = "new"
	StatusGraduating Status = "graduating"
	StatusGraduated  Status = "graduated"
)

// Statuses lists every status in column order.
var Statuses = []Status{StatusNew, StatusGraduating, StatusGraduated}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusGraduating, StatusGraduated:
		return true
	}
	return false
}

// Socials holds classified social links of a token.
type Socials struct {
	Website  string `json:"website"`
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
	Discord  string `json:"discord"`
}

// Token is a tradable asset launched on the platform.
// ID is the lowercase market (pool) address and is the store key;
// TokenAddress is the token contract and must never be used as the key.
type Token struct {
	ID           string  `json:"id"`
	TokenAddress string  `json:"tokenAddress"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Image        string  `json:"image"`
	Description  string  `json:"description"`
	Socials      Socials `json:"socials"`
	MetadataCID  string  `json:"metadataCID"`
	Creator      string  `json:"creator"`
	Created      int64   `json:"created"` // unix seconds
	Status       Status  `json:"status"`

	Price            float64 `json:"price"` // native per token
	MarketCap        float64 `json:"marketCap"`
	Volume24h        float64 `json:"volume24h"`
	BuyTransactions  int64   `json:"buyTransactions"`
	SellTransactions int64   `json:"sellTransactions"`

	Holders         int64   `json:"holders"`
	ProTraders      int64   `json:"proTraders"`
	KOLTraders      int64   `json:"kolTraders"`
	SniperHolding   float64 `json:"sniperHolding"`
	DevHolding      float64 `json:"devHolding"`
	BundleHolding   float64 `json:"bundleHolding"`
	InsiderHolding  float64 `json:"insiderHolding"`
	Top10Holding    float64 `json:"top10Holding"`
	LastUpdatedUnix int64   `json:"lastUpdated"`
}

// MarketCapFor returns the market cap implied by a native-per-token price.
func MarketCapFor(price float64) float64 {
	return price * TotalSupply
}

// NormalizeAddress lowercases and trims a hex address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
