package subgraph

import (
	"context"
	"fmt"

	"launchpad-terminal/internal/domain"
)

const positionsQuery = `query WalletPositions($account: String!, $first: Int!, $skip: Int!) {
  positions(first: $first, skip: $skip, orderBy: updatedAt, orderDirection: desc,
            where: { account: $account, balance_gt: "0" }) {
    token { id symbol }
    market { id }
    balance
    updatedAt
  }
}`

const walletTradesQuery = `query WalletTrades($account: String!, $first: Int!, $skip: Int!) {
  trades(first: $first, skip: $skip, orderBy: timestamp, orderDirection: desc,
         where: { trader: $account }) {
    id
    market { id token { symbol } }
    timestamp
    isBuy
    priceNativePerTokenWad
    amountToken
    amountNative
  }
}`

// paginate requests pages of size batch until a page comes back short or
// empty.
func paginate[T any](ctx context.Context, batch int, fetch func(ctx context.Context, first, skip int) ([]T, error)) ([]T, error) {
	var all []T
	for skip := 0; ; skip += batch {
		page, err := fetch(ctx, batch, skip)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < batch {
			return all, nil
		}
	}
}

type positionRow struct {
	Token struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"token"`
	Market    idRef  `json:"market"`
	Balance   bigNum `json:"balance"`
	UpdatedAt bigNum `json:"updatedAt"`
}

// FetchWalletPositions returns every non-zero position of account.
func (c *Client) FetchWalletPositions(ctx context.Context, account string) ([]domain.Position, error) {
	account = domain.NormalizeAddress(account)
	rows, err := paginate(ctx, c.pageSize(), func(ctx context.Context, first, skip int) ([]positionRow, error) {
		var data struct {
			Positions []positionRow `json:"positions"`
		}
		vars := map[string]interface{}{"account": account, "first": first, "skip": skip}
		if err := c.query(ctx, "positions", positionsQuery, vars, &data); err != nil {
			return nil, err
		}
		return data.Positions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch positions %s: %w", account, err)
	}

	out := make([]domain.Position, len(rows))
	for i, r := range rows {
		out[i] = domain.Position{
			Account:      account,
			TokenAddress: domain.NormalizeAddress(r.Token.ID),
			MarketID:     domain.NormalizeAddress(r.Market.ID),
			Symbol:       r.Token.Symbol,
			Balance:      r.Balance.wad(),
			UpdatedAt:    r.UpdatedAt.int64(),
		}
	}
	return out, nil
}

type walletTradeRow struct {
	tradeRow
	Market struct {
		ID    string `json:"id"`
		Token struct {
			Symbol string `json:"symbol"`
		} `json:"token"`
	} `json:"market"`
}

// FetchWalletTrades returns every trade made by account, newest first.
func (c *Client) FetchWalletTrades(ctx context.Context, account string) ([]domain.WalletTrade, error) {
	account = domain.NormalizeAddress(account)
	rows, err := paginate(ctx, c.pageSize(), func(ctx context.Context, first, skip int) ([]walletTradeRow, error) {
		var data struct {
			Trades []walletTradeRow `json:"trades"`
		}
		vars := map[string]interface{}{"account": account, "first": first, "skip": skip}
		if err := c.query(ctx, "walletTrades", walletTradesQuery, vars, &data); err != nil {
			return nil, err
		}
		return data.Trades, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch wallet trades %s: %w", account, err)
	}

	out := make([]domain.WalletTrade, len(rows))
	for i, r := range rows {
		out[i] = domain.WalletTrade{
			Trade:   r.tradeRow.normalize(domain.NormalizeAddress(r.Market.ID)),
			Account: account,
			Symbol:  r.Market.Token.Symbol,
		}
	}
	return out, nil
}
