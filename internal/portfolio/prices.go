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

package portfolio

import (
	"bytes"
	"cloud.google.com/go/logging"
	"context"
	"encoding/json"
	"fmt"
	"github.com/shopspring/decimal"
	"net/http"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/util"
)

const priceTimeout = 10 * time.Second

// PriceClient reads current prices from the market API.
type PriceClient struct {
	baseURL string
	client  *http.Client
}

func NewPriceClient(baseURL string, hc *http.Client) *PriceClient {
	if hc == nil {
		hc = &http.Client{Timeout: priceTimeout}
	}
	return &PriceClient{baseURL: strings.TrimRight(baseURL, "/"), client: hc}
}

type batchRequest struct {
	Tickers []string `json:"tickers"`
}

type batchResponse struct {
	Prices map[string]decimal.NullDecimal `json:"prices"`
}

// Prices returns the current price of every ticker. A price the API does
// not know, or every price when the API fails, is reported as invalid.
func (c *PriceClient) Prices(ctx context.Context, tickers []string) map[string]decimal.NullDecimal {
	ret := make(map[string]decimal.NullDecimal, len(tickers))
	for _, t := range tickers {
		ret[t] = decimal.NullDecimal{}
	}
	if len(tickers) == 0 {
		return ret
	}

	prices, err := c.batch(ctx, tickers)
	if err != nil {
		util.Logf(ctx, logging.Error, "failed to get prices of %v: %v", tickers, err)
		return ret
	}
	for _, t := range tickers {
		if p, ok := prices[t]; ok {
			ret[t] = p
		}
	}
	return ret
}

func (c *PriceClient) batch(ctx context.Context, tickers []string) (map[string]decimal.NullDecimal, error) {
	body, err := json.Marshal(batchRequest{Tickers: tickers})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, priceTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/prices/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request batch prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch prices returned status %s", resp.Status)
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("failed to decode batch prices: %w", err)
	}
	return br.Prices, nil
}
