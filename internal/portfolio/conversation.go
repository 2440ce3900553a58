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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"sync"
	"time"
)

// Conversation is the wizard progress of one chat.
type Conversation struct {
	State    State           `json:"state"`
	Ticker   string          `json:"ticker,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity,omitempty"`
}

type ConversationStore interface {
	// Load returns the zero Conversation for an unknown chat.
	Load(ctx context.Context, chatID int64) (Conversation, error)
	Save(ctx context.Context, chatID int64, c Conversation) error
	Delete(ctx context.Context, chatID int64) error
}

type MemoryConversations struct {
	mu sync.Mutex
	m  map[int64]Conversation
}

func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{m: make(map[int64]Conversation)}
}

func (s *MemoryConversations) Load(_ context.Context, chatID int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[chatID], nil
}

func (s *MemoryConversations) Save(_ context.Context, chatID int64, c Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = c
	return nil
}

func (s *MemoryConversations) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
	return nil
}

// DefaultConversationTTL bounds how long an abandoned wizard is kept.
const DefaultConversationTTL = 24 * time.Hour

// RedisConversations keeps conversations as JSON values so a restarted bot
// resumes open wizards.
type RedisConversations struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisConversations(client *redis.Client, prefix string, ttl time.Duration) *RedisConversations {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &RedisConversations{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisConversations) key(chatID int64) string {
	return fmt.Sprintf("%sconversation:%d", s.prefix, chatID)
}

func (s *RedisConversations) Load(ctx context.Context, chatID int64) (Conversation, error) {
	var c Conversation
	b, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return c, nil
	case err != nil:
		return c, fmt.Errorf("failed to load conversation %d: %w", chatID, err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Conversation{}, fmt.Errorf("failed to decode conversation %d: %w", chatID, err)
	}
	return c, nil
}

func (s *RedisConversations) Save(ctx context.Context, chatID int64, c Conversation) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, s.key(chatID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisConversations) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", chatID, err)
	}
	return nil
}
