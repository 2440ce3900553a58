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
	"context"
	"errors"
	"fmt"
	"github.com/Finnhub-Stock-API/finnhub-go"
	"github.com/ajjensen13/config"
	"github.com/ajjensen13/gke"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"net/url"
	"os"
	"time"

	"github.com/ajjensen13/marketfeed/internal/api"
	"github.com/ajjensen13/marketfeed/internal/db"
	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/ingest"
	"github.com/ajjensen13/marketfeed/internal/portfolio"
)

func provideTimezone(appConfig *appConfig) (*time.Location, error) {
	if appConfig.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(appConfig.Timezone)
}

func provideAppSecrets() (*appSecrets, error) {
	var result appSecrets
	err := loadConfig(apiSecretName, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func provideAppConfig() (*appConfig, error) {
	result := defaultAppConfig()
	err := loadConfig(appConfigName, &result)
	if err != nil {
		return nil, err
	}
	if err := result.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &result, nil
}

// provideDbSecrets returns nil when no secret is mounted, leaving the
// credentials of the data source name in place.
func provideDbSecrets() (*url.Userinfo, error) {
	ui, err := config.Userinfo(dbSecretName)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return ui, nil
}

func provideBackoff() func() backoff.BackOff {
	return func() backoff.BackOff {
		result := backoff.NewExponentialBackOff()
		result.InitialInterval = time.Second
		result.MaxElapsedTime = time.Minute
		return result
	}
}

func provideBackoffNotifier(lg gke.Logger) backoff.Notify {
	return func(err error, duration time.Duration) {
		if errors.Is(err, extract.ErrToManyRequests) {
			lg.Info(gke.NewFmtMsgData("request exceeded rate limit, waiting %v before retrying: %v", duration, err))
			return
		}
		lg.Warning(gke.NewFmtMsgData("request failed, waiting %v before retrying: %v", duration, err))
	}
}

func provideDataSourceName(user *url.Userinfo, cfg *appConfig) (dsn *url.URL, err error) {
	dsn, err = url.Parse(cfg.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data source name: %w", err)
	}
	if user != nil {
		dsn.User = user
	}

	return dsn, nil
}

func provideDbConnPool(ctx context.Context, dsn *url.URL) (ret *pgxpool.Pool, cleanup func(), err error) {
	pool, err := pgxpool.Connect(ctx, dsn.String())
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open database connection pool: %w", err)
	}

	return pool, pool.Close, nil
}

func provideStore(pool *pgxpool.Pool, bo func() backoff.BackOff, bon backoff.Notify, tz *time.Location) *db.Store {
	return db.NewStore(pool, db.WithRetry(bo, bon), db.WithLocation(tz))
}

// provideIngestStore writes without retrying. A failed persist step is
// rolled back at once and repeated by the next cycle.
func provideIngestStore(pool *pgxpool.Pool, tz *time.Location) *db.Store {
	return db.NewStore(pool, db.WithLocation(tz))
}

func provideMigrationSourceURL(cfg *appConfig) string {
	return cfg.MigrationSourceURL
}

func provideLogger() (lg gke.Logger, cleanup func()) {
	lg, cleanup, err := gke.NewLogger(context.Background())
	if err != nil {
		panic(err)
	}

	gke.LogEnv(lg)
	gke.LogMetadata(lg)

	return lg, cleanup
}

func provideMigrator(lg gke.Logger, databaseURL *url.URL, sourceURL string) (m *migrate.Migrate, err error) {
	m, err = migrate.New(sourceURL, databaseURL.String())
	if err != nil {
		return nil, err
	}
	m.Log = migrationLogger{lg}
	return m, err
}

type migrationLogger struct {
	gke.Logger
}

func (m migrationLogger) Printf(format string, v ...interface{}) {
	m.Defaultf(format, v...)
}

func (m migrationLogger) Verbose() bool {
	return false
}

func provideMoexClient(cfg *appConfig, bo func() backoff.BackOff, bon backoff.Notify) *extract.MoexClient {
	return extract.NewMoexClient(extract.WithBaseURL(cfg.MoexBaseURL), extract.WithRetry(bo, bon))
}

// provideIngestMoexClient attempts each request once, so a timed out fetch
// abandons the cycle step instead of stretching it past the next minute.
func provideIngestMoexClient(cfg *appConfig) *extract.MoexClient {
	return extract.NewMoexClient(extract.WithBaseURL(cfg.MoexBaseURL))
}

func provideIngestCandleSource(lg gke.Logger, cfg *appConfig, secrets *appSecrets, moex *extract.MoexClient, tz *time.Location) (ingest.CandleSource, error) {
	noRetry := func() backoff.BackOff { return &backoff.StopBackOff{} }
	return provideCandleSource(lg, cfg, secrets, moex, tz, noRetry, nil)
}

func provideApiServiceClient() *finnhub.DefaultApiService {
	return finnhub.NewAPIClient(finnhub.NewConfiguration()).DefaultApi
}

// provideCandleSource picks the candle provider named by the configuration.
// Index snapshots and quotes always come from MOEX.
func provideCandleSource(lg gke.Logger, cfg *appConfig, secrets *appSecrets, moex *extract.MoexClient, tz *time.Location, bo func() backoff.BackOff, bon backoff.Notify) (ingest.CandleSource, error) {
	if cfg.CandleSource != candleSourceFinnhub {
		return moex, nil
	}
	if secrets.ApiKey == "" {
		return nil, errors.New("finnhub candle source requires an api key")
	}
	lg.Defaultf("reading candles from finnhub")
	return extract.NewFinnhubClient(provideApiServiceClient(), secrets.ApiKey, tz, bo, bon), nil
}

func provideCandleConfig(cfg *appConfig, tz *time.Location) ingest.CandleConfig {
	return ingest.CandleConfig{
		Tickers:   cfg.Tickers,
		Window:    time.Duration(cfg.FilterHours) * time.Hour,
		Interval:  cfg.Interval,
		IndexName: cfg.IndexName,
		Location:  tz,
	}
}

func provideMonitorLoop(ci *ingest.CandleIngestor) *ingest.Loop {
	return &ingest.Loop{Cycler: ci}
}

func provideNewsConfig(cfg *appConfig) ingest.NewsConfig {
	return ingest.NewsConfig{
		Channels: cfg.Channels,
		PageSize: cfg.PageSize,
		Pacing:   time.Duration(cfg.PacingSeconds) * time.Second,
	}
}

func provideTelegramConfig(secrets *appSecrets) (extract.TelegramConfig, error) {
	if secrets.TelegramAppID == 0 || secrets.TelegramAppHash == "" {
		return extract.TelegramConfig{}, errors.New("telegram app id and hash are required")
	}
	sessionFile := secrets.TelegramSessionFile
	if sessionFile == "" {
		sessionFile = "marketfeed.session.json"
	}
	return extract.TelegramConfig{
		AppID:       secrets.TelegramAppID,
		AppHash:     secrets.TelegramAppHash,
		Phone:       secrets.TelegramPhone,
		Password:    secrets.TelegramPassword,
		SessionFile: sessionFile,
	}, nil
}

func provideMarketApp(candles ingest.CandleSource, moex *extract.MoexClient, store *db.Store, tz *time.Location) *api.MarketApp {
	return &api.MarketApp{
		Candles:  candles,
		Quotes:   moex,
		Index:    moex,
		Closes:   store,
		Location: tz,
	}
}

func provideNewsApp(store *db.Store, tz *time.Location) *api.NewsApp {
	return &api.NewsApp{Store: store, Location: tz}
}

// provideConversationStore keeps wizard state in Redis when a URL is
// configured and in process memory otherwise.
func provideConversationStore(ctx context.Context, lg gke.Logger, cfg *appConfig) (portfolio.ConversationStore, func(), error) {
	if cfg.RedisURL == "" {
		lg.Defaultf("keeping conversations in memory")
		return portfolio.NewMemoryConversations(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	cleanup := func() {
		if err := client.Close(); err != nil {
			lg.Warningf("failed to close redis client: %v", err)
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to ping redis: %w", err)
	}

	lg.Defaultf("keeping conversations in redis at %s", opts.Addr)
	return portfolio.NewRedisConversations(client, "marketfeed:", portfolio.DefaultConversationTTL), cleanup, nil
}

func providePriceClient(cfg *appConfig) *portfolio.PriceClient {
	return portfolio.NewPriceClient(cfg.MarketAPIURL, nil)
}

func provideService(store *db.Store, prices *portfolio.PriceClient, convs portfolio.ConversationStore, tz *time.Location) *portfolio.Service {
	return portfolio.NewService(store, prices, convs, tz)
}

func provideBot(secrets *appSecrets, service *portfolio.Service) (*portfolio.Bot, error) {
	if secrets.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	return portfolio.NewBot(secrets.BotToken, service)
}
