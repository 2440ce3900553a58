/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package portfolio keeps per-user securities ledgers and drives the chat
// conversations that edit and display them.
package portfolio

import (
	"github.com/shopspring/decimal"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
)

// Lot is one purchase as shown in a position.
type Lot struct {
	Price    decimal.Decimal
	Quantity int64
	Date     time.Time
}

// Position is the remaining holding of one ticker. Cost is the remaining
// quantity at the average purchase price.
type Position struct {
	Ticker            string
	Purchases         []Lot
	PurchasedQuantity int64
	SoldQuantity      int64
	Quantity          int64
	AveragePrice      decimal.Decimal
	Cost              decimal.Decimal
}

// Aggregate folds purchases and sales into positions, in order of each
// ticker's first purchase. Tickers with nothing left are omitted.
func Aggregate(purchases []model.Purchase, sales []model.Sale) []Position {
	var order []string
	byTicker := make(map[string]*Position)
	spent := make(map[string]decimal.Decimal)

	for _, p := range purchases {
		pos, ok := byTicker[p.Ticker]
		if !ok {
			pos = &Position{Ticker: p.Ticker}
			byTicker[p.Ticker] = pos
			order = append(order, p.Ticker)
		}
		pos.Purchases = append(pos.Purchases, Lot{Price: p.Price, Quantity: p.Quantity, Date: p.Date})
		pos.PurchasedQuantity += p.Quantity
		spent[p.Ticker] = spent[p.Ticker].Add(p.Price.Mul(decimal.NewFromInt(p.Quantity)))
	}
	for _, s := range sales {
		if pos, ok := byTicker[s.Ticker]; ok {
			pos.SoldQuantity += s.Quantity
		}
	}

	ret := make([]Position, 0, len(order))
	for _, ticker := range order {
		pos := byTicker[ticker]
		pos.Quantity = pos.PurchasedQuantity - pos.SoldQuantity
		if pos.Quantity <= 0 {
			continue
		}
		pos.AveragePrice = spent[ticker].Div(decimal.NewFromInt(pos.PurchasedQuantity))
		pos.Cost = pos.AveragePrice.Mul(decimal.NewFromInt(pos.Quantity))
		ret = append(ret, *pos)
	}
	return ret
}

// Tickers returns the tickers of positions.
func Tickers(positions []Position) []string {
	ret := make([]string, len(positions))
	for i, p := range positions {
		ret[i] = p.Ticker
	}
	return ret
}

// Valuation is a holding marked to a current price.
type Valuation struct {
	Value         decimal.Decimal
	Profit        decimal.Decimal
	ProfitPercent decimal.Decimal
}

func value(cost decimal.Decimal, quantity int64, price decimal.Decimal) Valuation {
	v := price.Mul(decimal.NewFromInt(quantity))
	profit := v.Sub(cost)
	var pct decimal.Decimal
	if cost.IsPositive() {
		pct = profit.Div(cost).Mul(decimal.NewFromInt(100))
	}
	return Valuation{Value: v, Profit: profit, ProfitPercent: pct}
}

func (p Position) Value(price decimal.Decimal) Valuation {
	return value(p.Cost, p.Quantity, price)
}

func (l Lot) Value(price decimal.Decimal) Valuation {
	return value(l.Price.Mul(decimal.NewFromInt(l.Quantity)), l.Quantity, price)
}
