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
	"cloud.google.com/go/logging"
	"context"
	"fmt"
	"github.com/mymmrac/telego"

	"github.com/ajjensen13/marketfeed/internal/util"
)

// Bot relays Telegram bot updates to a Service over long polling.
type Bot struct {
	bot     *telego.Bot
	service *Service
}

func NewBot(token string, service *Service) (*Bot, error) {
	b, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{bot: b, service: service}, nil
}

// Run processes updates one at a time until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	util.Logf(ctx, logging.Info, "telegram bot started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			b.handle(ctx, u.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, m *telego.Message) {
	in := Input{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		FirstName: m.From.FirstName,
		Text:      m.Text,
	}
	if m.Contact != nil {
		in.Contact = &Contact{PhoneNumber: m.Contact.PhoneNumber, UserID: m.Contact.UserID}
	}

	reply, err := b.service.Handle(ctx, in)
	if err != nil {
		util.Logf(ctx, logging.Error, "failed to handle message of chat %d: %v", in.ChatID, err)
	}
	if reply.Text == "" {
		return
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: m.Chat.ID},
		Text:   reply.Text,
	}
	if reply.Markdown {
		params.ParseMode = telego.ModeMarkdown
	}
	if kb := keyboard(reply.Keyboard); kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		util.Logf(ctx, logging.Error, "failed to send reply to chat %d: %v", in.ChatID, err)
	}
}

func buttons(rows ...[]string) [][]telego.KeyboardButton {
	ret := make([][]telego.KeyboardButton, len(rows))
	for i, row := range rows {
		ret[i] = make([]telego.KeyboardButton, len(row))
		for j, text := range row {
			ret[i][j] = telego.KeyboardButton{Text: text}
		}
	}
	return ret
}

func keyboard(k Keyboard) *telego.ReplyKeyboardMarkup {
	switch k {
	case KeyboardMain:
		return &telego.ReplyKeyboardMarkup{Keyboard: buttons([]string{ButtonPortfolio}), ResizeKeyboard: true}
	case KeyboardPortfolio:
		return &telego.ReplyKeyboardMarkup{Keyboard: buttons([]string{ButtonAdd, ButtonSell}, []string{ButtonMainMenu}), ResizeKeyboard: true}
	case KeyboardCancel:
		return &telego.ReplyKeyboardMarkup{Keyboard: buttons([]string{ButtonCancel}), ResizeKeyboard: true}
	case KeyboardPhone:
		return &telego.ReplyKeyboardMarkup{
			Keyboard:        [][]telego.KeyboardButton{{{Text: ButtonPhone, RequestContact: true}}},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	default:
		return nil
	}
}
