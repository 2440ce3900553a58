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
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert the database schema",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create the candle, index, news and portfolio tables",
	Run: func(cmd *cobra.Command, args []string) {
		runMigration("up", (*migrate.Migrate).Up)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop every table, including stored news and portfolios",
	Run: func(cmd *cobra.Command, args []string) {
		runMigration("down", (*migrate.Migrate).Down)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		m, err := migrator(lg)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer m.Close()

		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			lg.Defaultf("database has no schema yet")
		case err != nil:
			panic(lg.ErrorErr(err))
		default:
			lg.Defaultf("database schema version %d (dirty: %v)", v, dirty)
		}
	},
}

func runMigration(direction string, f func(*migrate.Migrate) error) {
	lg, cleanup := logger()
	defer cleanup()

	m, err := migrator(lg)
	if err != nil {
		panic(lg.ErrorErr(err))
	}
	defer m.Close()

	err = f(m)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		lg.Defaultf("database is already migrated fully %s", direction)
	case err != nil:
		panic(lg.ErrorErr(err))
	default:
		lg.Defaultf("database migrated %s", direction)
	}
}

func init() {
	migrateCmd.AddCommand(upCmd)
	migrateCmd.AddCommand(downCmd)
	migrateCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
}
