package store

import (
	"time"

	"launchpad-terminal/internal/domain"
)

// Action is the closed set of state mutations. Every change to token state
// goes through one of the types below.
type Action interface {
	isAction()
}

// Init replaces all state with a fresh snapshot.
type Init struct {
	Tokens []domain.Token
}

// AddMarket prepends a newly created market to its status bucket.
type AddMarket struct {
	Token domain.Token
}

// UpdateMarket merges Updates into every token whose id matches ID,
// case-insensitively.
type UpdateMarket struct {
	ID      string
	Updates Updates
}

// HideToken soft-hides a token from every selector.
type HideToken struct {
	ID string
}

// SetLoading marks or clears an in-flight request for a token.
type SetLoading struct {
	ID      string
	Loading bool
}

func (Init) isAction()         {}
func (AddMarket) isAction()    {}
func (UpdateMarket) isAction() {}
func (HideToken) isAction()    {}
func (SetLoading) isAction()   {}

// Updates is a partial token change. Nil fields are left untouched;
// VolumeDelta is added to Volume24h rather than stored.
type Updates struct {
	Price            *float64
	MarketCap        *float64
	BuyTransactions  *int64
	SellTransactions *int64
	Holders          *int64
	Status           *domain.Status
	Image            *string
	Description      *string
	Socials          *domain.Socials
	LastUpdatedUnix  *int64
	VolumeDelta      float64
}

// UpdatesFromEvent converts a decoded market update into a merge payload.
func UpdatesFromEvent(ev domain.MarketUpdate, at time.Time) Updates {
	price := ev.Price
	mcap := domain.MarketCapFor(ev.Price)
	buys, sells := ev.BuyCount, ev.SellCount
	ts := at.Unix()
	return Updates{
		Price:            &price,
		MarketCap:        &mcap,
		BuyTransactions:  &buys,
		SellTransactions: &sells,
		LastUpdatedUnix:  &ts,
		VolumeDelta:      ev.VolumeDelta,
	}
}

// TokenFromCreated builds the initial token row for a freshly created market.
func TokenFromCreated(ev domain.MarketCreated, at time.Time) domain.Token {
	return domain.Token{
		ID:              domain.NormalizeAddress(ev.MarketAddress),
		TokenAddress:    domain.NormalizeAddress(ev.TokenAddress),
		Name:            ev.Name,
		Symbol:          ev.Symbol,
		MetadataCID:     ev.MetadataCID,
		Created:         at.Unix(),
		Status:          domain.StatusNew,
		LastUpdatedUnix: at.Unix(),
	}
}

func (u Updates) apply(t *domain.Token) {
	if u.Price != nil {
		t.Price = *u.Price
	}
	if u.MarketCap != nil {
		t.MarketCap = *u.MarketCap
	}
	if u.BuyTransactions != nil {
		t.BuyTransactions = *u.BuyTransactions
	}
	if u.SellTransactions != nil {
		t.SellTransactions = *u.SellTransactions
	}
	if u.Holders != nil {
		t.Holders = *u.Holders
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Image != nil {
		t.Image = *u.Image
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Socials != nil {
		t.Socials = *u.Socials
	}
	if u.LastUpdatedUnix != nil {
		t.LastUpdatedUnix = *u.LastUpdatedUnix
	}
	t.Volume24h += u.VolumeDelta
}
