package subgraph

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"launchpad-terminal/internal/chainlog"
	"launchpad-terminal/internal/domain"
)

const launchpadTokensQuery = `query LaunchpadTokens($first: Int!, $skip: Int!, $orderBy: LaunchpadToken_orderBy!) {
  launchpadTokens(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: desc) {
    id
    creator { id }
    token { id }
    name
    symbol
    metadataCID
    description
    social1
    social2
    social3
    createdAt
    migrated
    migratedAt
    volumeNative
    volumeToken
    buyTxs
    sellTxs
    distinctBuyers
    distinctSellers
    lastPriceNativePerTokenWad
    lastUpdatedAt
  }
}`

// Order keys accepted by FetchLaunchpadTokens.
const (
	OrderByCreatedAt    = "createdAt"
	OrderByLastUpdated  = "lastUpdatedAt"
	OrderByVolumeNative = "volumeNative"
)

// bigNum is a subgraph BigInt or BigDecimal, serialized as a string.
type bigNum string

func (b bigNum) bigInt() *big.Int {
	s := string(b)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// wad converts an 18-decimal fixed-point value.
func (b bigNum) wad() float64 {
	return chainlog.WeiToFloat(b.bigInt())
}

func (b bigNum) int64() int64 {
	v := b.bigInt()
	if !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

func (b bigNum) float() float64 {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0
	}
	return f
}

type idRef struct {
	ID string `json:"id"`
}

type launchpadTokenRow struct {
	ID                         string `json:"id"`
	Creator                    idRef  `json:"creator"`
	Token                      idRef  `json:"token"`
	Name                       string `json:"name"`
	Symbol                     string `json:"symbol"`
	MetadataCID                string `json:"metadataCID"`
	Description                string `json:"description"`
	Social1                    string `json:"social1"`
	Social2                    string `json:"social2"`
	Social3                    string `json:"social3"`
	CreatedAt                  bigNum `json:"createdAt"`
	Migrated                   bool   `json:"migrated"`
	MigratedAt                 bigNum `json:"migratedAt"`
	VolumeNative               bigNum `json:"volumeNative"`
	VolumeToken                bigNum `json:"volumeToken"`
	BuyTxs                     bigNum `json:"buyTxs"`
	SellTxs                    bigNum `json:"sellTxs"`
	DistinctBuyers             bigNum `json:"distinctBuyers"`
	DistinctSellers            bigNum `json:"distinctSellers"`
	LastPriceNativePerTokenWad bigNum `json:"lastPriceNativePerTokenWad"`
	LastUpdatedAt              bigNum `json:"lastUpdatedAt"`
}

// FetchLaunchpadTokens fetches one page of launchpad tokens and their
// metadata. Metadata failures leave image, description and metadata
// socials empty; they never fail the page.
func (c *Client) FetchLaunchpadTokens(ctx context.Context, limit, offset int, orderBy string) ([]domain.Token, error) {
	if orderBy == "" {
		orderBy = OrderByCreatedAt
	}
	vars := map[string]interface{}{
		"first":   limit,
		"skip":    offset,
		"orderBy": orderBy,
	}

	var data struct {
		LaunchpadTokens []launchpadTokenRow `json:"launchpadTokens"`
	}
	if err := c.query(ctx, "launchpadTokens", launchpadTokensQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch launchpad tokens: %w", err)
	}

	tokens := make([]domain.Token, len(data.LaunchpadTokens))
	for i, row := range data.LaunchpadTokens {
		tokens[i] = c.normalizeToken(row)
	}
	c.enrich(ctx, tokens)
	return tokens, nil
}

func (c *Client) normalizeToken(row launchpadTokenRow) domain.Token {
	price := row.LastPriceNativePerTokenWad.wad()
	mcap := domain.MarketCapFor(price)
	return domain.Token{
		ID:               domain.NormalizeAddress(row.ID),
		TokenAddress:     domain.NormalizeAddress(row.Token.ID),
		Name:             row.Name,
		Symbol:           row.Symbol,
		Description:      row.Description,
		Socials:          ClassifySocials(row.Social1, row.Social2, row.Social3),
		MetadataCID:      row.MetadataCID,
		Creator:          domain.NormalizeAddress(row.Creator.ID),
		Created:          row.CreatedAt.int64(),
		Status:           c.deriveStatus(row.Migrated, mcap),
		Price:            price,
		MarketCap:        mcap,
		Volume24h:        row.VolumeNative.wad(),
		BuyTransactions:  row.BuyTxs.int64(),
		SellTransactions: row.SellTxs.int64(),
		Holders:          row.DistinctBuyers.int64(),
		LastUpdatedUnix:  row.LastUpdatedAt.int64(),
	}
}

// deriveStatus maps curve progress to a lifecycle status.
func (c *Client) deriveStatus(migrated bool, marketCap float64) domain.Status {
	switch {
	case migrated:
		return domain.StatusGraduated
	case c.graduationCap > 0 && marketCap >= c.graduationCap*c.graduatingFraction:
		return domain.StatusGraduating
	default:
		return domain.StatusNew
	}
}
