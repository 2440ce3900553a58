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

// Package db persists market data, news and portfolio ledgers in Postgres.
package db

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"time"

	"github.com/ajjensen13/marketfeed/internal/util"
)

var (
	ErrNotFound             = errors.New("error: not found")
	ErrInsufficientQuantity = errors.New("error: insufficient quantity")
)

const uniqueViolation = "23505"

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxRunner runs f inside one transaction.
type TxRunner func(ctx context.Context, f func(ctx context.Context, q Querier) error) error

type Store struct {
	q     Querier
	runTx TxRunner
	bo    func() backoff.BackOff
	bon   backoff.Notify
	loc   *time.Location
}

type Option func(*Store)

// WithRetry retries writes with a fresh backoff from bo.
func WithRetry(bo func() backoff.BackOff, bon backoff.Notify) Option {
	return func(s *Store) {
		s.bo = bo
		s.bon = bon
	}
}

// WithLocation sets the zone source timestamps without offset are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	return NewQuerierStore(pool, func(ctx context.Context, f func(ctx context.Context, q Querier) error) error {
		return util.RunTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
			return f(ctx, tx)
		})
	}, opts...)
}

// NewQuerierStore builds a store on any Querier. runTx may be nil, in which
// case transactional work runs directly on q.
func NewQuerierStore(q Querier, runTx TxRunner, opts ...Option) *Store {
	if runTx == nil {
		runTx = func(ctx context.Context, f func(ctx context.Context, q Querier) error) error {
			return f(ctx, q)
		}
	}
	s := &Store{
		q:     q,
		runTx: runTx,
		bo:    func() backoff.BackOff { return &backoff.StopBackOff{} },
		loc:   time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) retry(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	return backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := op(ctx)
		if errors.Is(err, ErrInsufficientQuantity) || errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.bo(), ctx), s.bon)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
