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

package cmd

import (
	"errors"
	"fmt"
	"github.com/ajjensen13/config"
	"github.com/caarlos0/env/v11"
	"os"
)

const (
	dbSecretName  = "marketfeed-db-secret.json"
	appConfigName = "marketfeed-config-cm.json"
	apiSecretName = "marketfeed-api-secret.json"

	envPrefix = "MARKETFEED_"
)

const (
	candleSourceMoex    = "moex"
	candleSourceFinnhub = "finnhub"
)

// appConfig is read from the mounted config map and then overridden by
// MARKETFEED_* environment variables.
type appConfig struct {
	Timezone           string `json:"timezone" env:"TIMEZONE"`
	DataSourceName     string `json:"data_source_name" env:"DATA_SOURCE_NAME"`
	MigrationSourceURL string `json:"migration_source_url" env:"MIGRATION_SOURCE_URL"`

	Tickers      []string `json:"tickers" env:"TICKERS" envSeparator:","`
	FilterHours  int      `json:"filter_hours" env:"FILTER_HOURS"`
	Interval     int      `json:"interval" env:"INTERVAL"`
	IndexName    string   `json:"index_name" env:"INDEX_NAME"`
	CandleSource string   `json:"candle_source" env:"CANDLE_SOURCE"`
	MoexBaseURL  string   `json:"moex_base_url" env:"MOEX_BASE_URL"`

	Channels      []string `json:"channels" env:"CHANNELS" envSeparator:","`
	PageSize      int      `json:"page_size" env:"NEWS_PAGE_SIZE"`
	PacingSeconds int      `json:"pacing_seconds" env:"NEWS_PACING_SECONDS"`
	NewsCron      string   `json:"news_cron" env:"NEWS_CRON"`

	MarketAddr   string `json:"market_addr" env:"MARKET_ADDR"`
	NewsAddr     string `json:"news_addr" env:"NEWS_ADDR"`
	MarketAPIURL string `json:"market_api_url" env:"MARKET_API_URL"`
	RedisURL     string `json:"redis_url" env:"REDIS_URL"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Timezone:           "Europe/Moscow",
		MigrationSourceURL: "file://migrations",
		Tickers:            []string{"SBER"},
		FilterHours:        1,
		Interval:           1,
		IndexName:          "IMOEX",
		CandleSource:       candleSourceMoex,
		PageSize:           5,
		PacingSeconds:      1,
		NewsCron:           "*/5 * * * *",
		MarketAddr:         ":8000",
		NewsAddr:           ":8001",
		MarketAPIURL:       "http://localhost:8000",
	}
}

type appSecrets struct {
	ApiKey string `json:"api_key" env:"FINNHUB_API_KEY"`

	TelegramAppID       int    `json:"telegram_app_id" env:"TELEGRAM_APP_ID"`
	TelegramAppHash     string `json:"telegram_app_hash" env:"TELEGRAM_APP_HASH"`
	TelegramPhone       string `json:"telegram_phone" env:"TELEGRAM_PHONE"`
	TelegramPassword    string `json:"telegram_password" env:"TELEGRAM_PASSWORD"`
	TelegramSessionFile string `json:"telegram_session_file" env:"TELEGRAM_SESSION_FILE"`

	BotToken string `json:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
}

// loadConfig fills v from the named config file, if it exists, and then from
// the environment.
func loadConfig(name string, v interface{}) error {
	err := config.InterfaceJson(name, v)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := env.ParseWithOptions(v, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

func (c *appConfig) validate() error {
	switch c.CandleSource {
	case candleSourceMoex, candleSourceFinnhub:
	default:
		return fmt.Errorf("candle_source must be %q or %q, got: %q", candleSourceMoex, candleSourceFinnhub, c.CandleSource)
	}
	if c.FilterHours <= 0 {
		return fmt.Errorf("filter_hours must be positive, got: %d", c.FilterHours)
	}
	if c.DataSourceName == "" {
		return errors.New("data_source_name is required")
	}
	return nil
}
