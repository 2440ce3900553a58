//go:build wireinject
// +build wireinject

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
	"github.com/ajjensen13/gke"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/google/wire"
	"net/url"
	"time"

	"github.com/ajjensen13/marketfeed/internal/api"
	"github.com/ajjensen13/marketfeed/internal/db"
	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/ingest"
	"github.com/ajjensen13/marketfeed/internal/portfolio"
)

var ingestStoreSet = wire.NewSet(provideIngestStore, provideDbConnPool, provideDataSourceName, provideDbSecrets, provideAppConfig, provideTimezone)

var storeSet = wire.NewSet(provideStore, provideDbConnPool, provideDataSourceName, provideDbSecrets, provideAppConfig, provideBackoff, provideBackoffNotifier, provideTimezone)

func appConfiguration() (*appConfig, error) {
	panic(wire.Build(provideAppConfig))
}

func dataSourceName() (dsn *url.URL, err error) {
	panic(wire.Build(provideDataSourceName, provideDbSecrets, provideAppConfig))
}

func migrationSourceURL() (uri string, err error) {
	panic(wire.Build(provideMigrationSourceURL, provideAppConfig))
}

func logger() (lg gke.Logger, cleanup func()) {
	panic(wire.Build(provideLogger))
}

func migrator(lg gke.Logger) (m *migrate.Migrate, err error) {
	panic(wire.Build(provideMigrator, migrationSourceURL, dataSourceName))
}

func candleIngestor(ctx context.Context, lg gke.Logger) (*ingest.CandleIngestor, func(), error) {
	panic(wire.Build(
		ingestStoreSet,
		provideAppSecrets,
		provideIngestMoexClient,
		provideIngestCandleSource,
		provideCandleConfig,
		wire.Bind(new(ingest.IndexSource), new(*extract.MoexClient)),
		wire.Bind(new(ingest.CandleStore), new(*db.Store)),
		ingest.NewCandleIngestor,
	))
}

func monitorLoop(ctx context.Context, lg gke.Logger) (*ingest.Loop, func(), error) {
	panic(wire.Build(candleIngestor, provideMonitorLoop))
}

func telegramConfig() (extract.TelegramConfig, error) {
	panic(wire.Build(provideTelegramConfig, provideAppSecrets))
}

func newsIngestor(ctx context.Context, lg gke.Logger, src ingest.ChannelSource) (*ingest.NewsIngestor, func(), error) {
	panic(wire.Build(
		ingestStoreSet,
		provideNewsConfig,
		wire.Bind(new(ingest.NewsStore), new(*db.Store)),
		ingest.NewNewsIngestor,
	))
}

func marketRouter(ctx context.Context, lg gke.Logger) (*gin.Engine, func(), error) {
	panic(wire.Build(storeSet, provideAppSecrets, provideMoexClient, provideCandleSource, provideMarketApp, api.NewMarketRouter))
}

func newsRouter(ctx context.Context, lg gke.Logger) (*gin.Engine, func(), error) {
	panic(wire.Build(storeSet, provideNewsApp, api.NewNewsRouter))
}

func portfolioBot(ctx context.Context, lg gke.Logger) (*portfolio.Bot, func(), error) {
	panic(wire.Build(storeSet, provideAppSecrets, provideConversationStore, providePriceClient, provideService, provideBot))
}
