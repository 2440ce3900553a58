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

package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"io"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
)

type TelegramConfig struct {
	AppID       int
	AppHash     string
	Phone       string
	Password    string
	SessionFile string
}

func NewTelegramClient(cfg TelegramConfig) *telegram.Client {
	return telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
	})
}

// RunTelegram connects client, signs in with cfg.Phone when the session
// file holds no authorization, and calls f with a ready source. The login
// code is read from code, one line.
func RunTelegram(ctx context.Context, client *telegram.Client, cfg TelegramConfig, code io.Reader, f func(ctx context.Context, src *TelegramSource) error) error {
	return client.Run(ctx, func(ctx context.Context) error {
		prompt := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
			line, err := bufio.NewReader(code).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("failed to read login code: %w", err)
			}
			return strings.TrimSpace(line), nil
		})
		flow := auth.NewFlow(auth.Constant(cfg.Phone, cfg.Password, prompt), auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("failed to authorize telegram client: %w", err)
		}
		return f(ctx, NewTelegramSource(client))
	})
}

// TelegramSource reads public channel history through a user account.
type TelegramSource struct {
	raw  tg.Invoker
	api  *tg.Client
	refs map[string]model.ChannelRef
}

// NewTelegramSource wraps a connected MTProto invoker, usually a
// *telegram.Client inside its Run callback.
func NewTelegramSource(inv tg.Invoker) *TelegramSource {
	return &TelegramSource{raw: inv, api: tg.NewClient(inv), refs: make(map[string]model.ChannelRef)}
}

// ChannelName strips the "@" and t.me link forms off a channel reference.
func ChannelName(name string) string {
	name = strings.TrimSpace(name)
	for _, p := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		name = strings.TrimPrefix(name, p)
	}
	return strings.TrimSuffix(name, "/")
}

func (s *TelegramSource) Resolve(ctx context.Context, name string) (model.ChannelRef, error) {
	username := ChannelName(name)
	if ref, ok := s.refs[username]; ok {
		return ref, nil
	}

	var res tg.ContactsResolvedPeer
	if err := s.raw.Invoke(ctx, &tg.ContactsResolveUsernameRequest{Username: username}, &res); err != nil {
		return model.ChannelRef{}, telegramErr(fmt.Sprintf("failed to resolve channel %s", username), err)
	}

	for _, chat := range res.Chats {
		switch c := chat.(type) {
		case *tg.Channel:
			ref := model.ChannelRef{Name: username, ID: c.ID, AccessHash: c.AccessHash}
			s.refs[username] = ref
			return ref, nil
		case *tg.ChannelForbidden:
			return model.ChannelRef{}, fmt.Errorf("channel %s: %w", username, ErrChannelPrivate)
		}
	}
	return model.ChannelRef{}, fmt.Errorf("%s is not a channel: %w", username, ErrChannelNotFound)
}

// Latest returns up to limit of the channel's newest messages, newest first.
// Service messages are left out.
func (s *TelegramSource) Latest(ctx context.Context, ref model.ChannelRef, limit int) ([]model.Message, error) {
	res, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash},
		Limit: limit,
	})
	if err != nil {
		return nil, telegramErr(fmt.Sprintf("failed to get history of channel %s", ref.Name), err)
	}

	var raw []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		raw = r.Messages
	case *tg.MessagesMessagesSlice:
		raw = r.Messages
	case *tg.MessagesChannelMessages:
		raw = r.Messages
	default:
		return nil, fmt.Errorf("unexpected history response %T for channel %s: %w", res, ref.Name, ErrProtocol)
	}

	ret := make([]model.Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		ret = append(ret, model.Message{
			ID:   int64(msg.ID),
			Date: time.Unix(int64(msg.Date), 0).UTC(),
			Text: msg.Message,
		})
	}
	return ret, nil
}

func telegramErr(msg string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &RateLimitError{RetryAfter: d, Err: fmt.Errorf("%s: %w", msg, ErrToManyRequests)}
	}
	switch {
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return fmt.Errorf("%s: %v: %w", msg, err, ErrChannelNotFound)
	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_INVALID"):
		return fmt.Errorf("%s: %v: %w", msg, err, ErrChannelPrivate)
	default:
		return fmt.Errorf("%s: %v: %w", msg, err, ErrConnection)
	}
}
