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
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/db"
	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
	"github.com/ajjensen13/marketfeed/internal/util"
)

type Store interface {
	UserByTelegramID(ctx context.Context, telegramID int64) (model.User, error)
	CreateUser(ctx context.Context, telegramID int64, phone string) (model.User, error)
	AddPurchase(ctx context.Context, p model.Purchase) (model.Purchase, error)
	AddSale(ctx context.Context, s model.Sale) (model.Sale, error)
	Purchases(ctx context.Context, userID int64) ([]model.Purchase, error)
	Sales(ctx context.Context, userID int64) ([]model.Sale, error)
	AvailableQuantity(ctx context.Context, userID int64, ticker string) (int64, error)
}

type PriceSource interface {
	Prices(ctx context.Context, tickers []string) map[string]decimal.NullDecimal
}

type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMain
	KeyboardPortfolio
	KeyboardPhone
	KeyboardCancel
)

type Reply struct {
	Text     string
	Keyboard Keyboard
	Markdown bool
}

type Contact struct {
	PhoneNumber string
	UserID      int64
}

type Input struct {
	ChatID    int64
	UserID    int64
	FirstName string
	Text      string
	Contact   *Contact
}

const maxTickerLen = 20

// EarliestDate is the first accepted purchase or sale date.
var EarliestDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type Service struct {
	store  Store
	prices PriceSource
	convs  ConversationStore
	loc    *time.Location
	now    func() time.Time
}

func NewService(store Store, prices PriceSource, convs ConversationStore, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, prices: prices, convs: convs, loc: loc, now: time.Now}
}

// SetClock replaces the clock used for date validation.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type handler func(s *Service, ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error)

var handlers = map[Action]handler{
	ActionStart:         (*Service).start,
	ActionRegister:      (*Service).register,
	ActionShowPortfolio: (*Service).showPortfolio,
	ActionBeginAdd:      (*Service).beginAdd,
	ActionBeginSell:     (*Service).beginSell,
	ActionCancel:        (*Service).cancel,
	ActionMainMenu:      (*Service).mainMenu,
	ActionAddTicker:     (*Service).addTicker,
	ActionAddPrice:      (*Service).price,
	ActionAddQuantity:   (*Service).addQuantity,
	ActionAddDate:       (*Service).addDate,
	ActionSellTicker:    (*Service).sellTicker,
	ActionSellPrice:     (*Service).price,
	ActionSellQuantity:  (*Service).sellQuantity,
	ActionSellDate:      (*Service).sellDate,
}

var errReply = Reply{Text: "An error occurred. Please try again later.", Keyboard: KeyboardMain}

// Handle advances the chat's conversation by one message. The returned
// reply has no text when the message is ignored. On an internal failure the
// reply carries a generic error text, the conversation is reset and the
// error is returned for logging.
func (s *Service) Handle(ctx context.Context, in Input) (Reply, error) {
	ctx = util.WithLoggerValue(ctx, "chat_id", strconv.FormatInt(in.ChatID, 10))

	conv, err := s.convs.Load(ctx, in.ChatID)
	if err != nil {
		return errReply, err
	}

	t := Next(conv.State, Classify(in.Text, in.Contact != nil))
	h, ok := handlers[t.Action]
	if !ok {
		return Reply{}, nil
	}

	reply, next, err := h(s, ctx, in, &conv, t.Next)
	if err != nil {
		util.Logf(ctx, logging.Error, "failed to handle message in state %q: %v", conv.State, err)
		_ = s.convs.Delete(ctx, in.ChatID)
		return errReply, err
	}

	if next == StateIdle {
		err = s.convs.Delete(ctx, in.ChatID)
	} else {
		conv.State = next
		err = s.convs.Save(ctx, in.ChatID, conv)
	}
	if err != nil {
		return reply, fmt.Errorf("failed to store conversation: %w", err)
	}
	return reply, nil
}

// user returns the registered user of in, or false.
func (s *Service) user(ctx context.Context, in Input) (model.User, bool, error) {
	u, err := s.store.UserByTelegramID(ctx, in.UserID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return u, false, nil
	case err != nil:
		return u, false, err
	}
	return u, true, nil
}

var notRegistered = Reply{Text: "You are not registered. Use /start to register."}

func (s *Service) start(ctx context.Context, in Input, _ *Conversation, next State) (Reply, State, error) {
	_, ok, err := s.user(ctx, in)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if ok {
		return Reply{Text: fmt.Sprintf("Welcome back, %s!\n\nUse the menu to navigate.", in.FirstName), Keyboard: KeyboardMain}, next, nil
	}
	return Reply{Text: "Welcome! To get started, you need to register.\n\nPlease share your phone number.", Keyboard: KeyboardPhone}, StateAwaitPhone, nil
}

func (s *Service) register(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	if in.Contact.UserID != in.UserID {
		return Reply{Text: "Please share your own phone number.", Keyboard: KeyboardPhone}, c.State, nil
	}

	_, ok, err := s.user(ctx, in)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if ok {
		return Reply{Text: "You are already registered!", Keyboard: KeyboardMain}, next, nil
	}

	phone := in.Contact.PhoneNumber
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if _, err := s.store.CreateUser(ctx, in.UserID, phone); err != nil {
		return Reply{}, StateIdle, err
	}
	util.Logf(ctx, logging.Info, "registered telegram user %d", in.UserID)
	return Reply{Text: fmt.Sprintf("Registration completed successfully!\nYour phone number: %s\n\nNow you can manage your portfolio.", phone), Keyboard: KeyboardMain}, next, nil
}

func (s *Service) showPortfolio(ctx context.Context, in Input, _ *Conversation, next State) (Reply, State, error) {
	u, ok, err := s.user(ctx, in)
	if err != nil || !ok {
		return notRegistered, next, err
	}

	purchases, err := s.store.Purchases(ctx, u.ID)
	if err != nil {
		return Reply{}, next, err
	}
	sales, err := s.store.Sales(ctx, u.ID)
	if err != nil {
		return Reply{}, next, err
	}

	positions := Aggregate(purchases, sales)
	if len(positions) == 0 {
		return Reply{Text: "Your portfolio is empty.\n\nUse the 'Add Securities' button to add positions.", Keyboard: KeyboardPortfolio}, next, nil
	}

	prices := s.prices.Prices(ctx, Tickers(positions))
	return Reply{Text: FormatPortfolio(positions, prices), Keyboard: KeyboardPortfolio, Markdown: true}, next, nil
}

func (s *Service) beginAdd(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	if _, ok, err := s.user(ctx, in); err != nil || !ok {
		return notRegistered, StateIdle, err
	}
	*c = Conversation{}
	return Reply{Text: "Enter the security ticker (e.g., SBER, GAZP):", Keyboard: KeyboardCancel}, next, nil
}

func (s *Service) beginSell(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	if _, ok, err := s.user(ctx, in); err != nil || !ok {
		return notRegistered, StateIdle, err
	}
	*c = Conversation{}
	return Reply{Text: "Enter the security ticker to sell (e.g., SBER, GAZP):", Keyboard: KeyboardCancel}, next, nil
}

func (s *Service) cancel(context.Context, Input, *Conversation, State) (Reply, State, error) {
	return Reply{Text: "Action cancelled.", Keyboard: KeyboardMain}, StateIdle, nil
}

func (s *Service) mainMenu(context.Context, Input, *Conversation, State) (Reply, State, error) {
	return Reply{Text: "Main Menu:", Keyboard: KeyboardMain}, StateIdle, nil
}

func parseTicker(text string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(text))
	return t, t != "" && len(t) <= maxTickerLen
}

var invalidTicker = Reply{Text: "Invalid ticker. Enter a security ticker (e.g., SBER):", Keyboard: KeyboardCancel}

func (s *Service) addTicker(_ context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	ticker, ok := parseTicker(in.Text)
	if !ok {
		return invalidTicker, c.State, nil
	}
	c.Ticker = ticker
	return Reply{Text: fmt.Sprintf("Ticker: %s\n\nEnter the purchase price per share (in rubles, e.g., 300.50):", ticker), Keyboard: KeyboardCancel}, next, nil
}

func (s *Service) sellTicker(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	u, ok, err := s.user(ctx, in)
	if err != nil || !ok {
		return notRegistered, StateIdle, err
	}
	ticker, ok := parseTicker(in.Text)
	if !ok {
		return invalidTicker, c.State, nil
	}

	available, err := s.store.AvailableQuantity(ctx, u.ID, ticker)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if available <= 0 {
		return Reply{Text: fmt.Sprintf("You don't have any shares of %s to sell.\n\nPlease enter a different ticker or cancel.", ticker), Keyboard: KeyboardCancel}, c.State, nil
	}

	c.Ticker = ticker
	return Reply{Text: fmt.Sprintf("Ticker: %s\nAvailable shares: %d\n\nEnter the sale price per share (in rubles, e.g., 300.50):", ticker, available), Keyboard: KeyboardCancel}, next, nil
}

// ParsePrice accepts a positive decimal with "." or "," as separator.
func ParsePrice(text string) (decimal.Decimal, bool) {
	p, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(text), ",", ".", 1))
	if err != nil || !p.IsPositive() {
		return decimal.Decimal{}, false
	}
	return p, true
}

func (s *Service) price(_ context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	kind := "purchase"
	if c.State == StateSellPrice {
		kind = "sale"
	}
	p, ok := ParsePrice(in.Text)
	if !ok {
		return Reply{Text: fmt.Sprintf("Invalid price. Enter the %s price in rubles (e.g., 300.50):", kind), Keyboard: KeyboardCancel}, c.State, nil
	}
	c.Price = p

	prompt := "Enter the number of shares (whole number, e.g., 10):"
	if kind == "sale" {
		prompt = "Enter the number of shares to sell (whole number, e.g., 10):"
	}
	return Reply{Text: fmt.Sprintf("Price: %s ₽\n\n%s", p.StringFixed(2), prompt), Keyboard: KeyboardCancel}, next, nil
}

// ParseQuantity accepts a positive whole number.
func ParseQuantity(text string) (int64, bool) {
	q, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	return q, err == nil && q > 0
}

var invalidQuantity = Reply{Text: "Invalid quantity. Enter a whole number (e.g., 10):", Keyboard: KeyboardCancel}

const datePrompt = "Enter the %s date as YYYY-MM-DD, or \"today\":"

func (s *Service) addQuantity(_ context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	q, ok := ParseQuantity(in.Text)
	if !ok {
		return invalidQuantity, c.State, nil
	}
	c.Quantity = q
	return Reply{Text: fmt.Sprintf("Quantity: %d shares\n\n"+datePrompt, q, "purchase"), Keyboard: KeyboardCancel}, next, nil
}

func insufficient(ticker string, want, available int64) Reply {
	return Reply{Text: fmt.Sprintf("❌ Insufficient shares!\n\nYou are trying to sell %d shares of %s,\nbut you only have %d shares available.\n\nPlease enter a valid quantity (max %d):", want, ticker, available, available), Keyboard: KeyboardCancel}
}

func (s *Service) sellQuantity(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	u, ok, err := s.user(ctx, in)
	if err != nil || !ok {
		return notRegistered, StateIdle, err
	}
	q, ok := ParseQuantity(in.Text)
	if !ok {
		return invalidQuantity, c.State, nil
	}

	available, err := s.store.AvailableQuantity(ctx, u.ID, c.Ticker)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if q > available {
		return insufficient(c.Ticker, q, available), c.State, nil
	}

	c.Quantity = q
	return Reply{Text: fmt.Sprintf("Quantity: %d shares\n\n"+datePrompt, q, "sale"), Keyboard: KeyboardCancel}, next, nil
}

// ParseDate accepts YYYY-MM-DD or "today" between EarliestDate and today.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "today" {
		return today, true
	}
	d, err := time.Parse(transform.DateLayout, text)
	if err != nil || d.Before(EarliestDate) || d.After(today) {
		return time.Time{}, false
	}
	return d, true
}

func (s *Service) invalidDate() Reply {
	return Reply{Text: fmt.Sprintf("Invalid date. Enter a date between %s and today as YYYY-MM-DD, or \"today\":", EarliestDate.Format(transform.DateLayout)), Keyboard: KeyboardCancel}
}

func (s *Service) addDate(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	u, ok, err := s.user(ctx, in)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if !ok {
		return Reply{Text: "Error: user not found.", Keyboard: KeyboardMain}, StateIdle, nil
	}
	d, ok := ParseDate(in.Text, s.now().In(s.loc))
	if !ok {
		return s.invalidDate(), c.State, nil
	}

	p, err := s.store.AddPurchase(ctx, model.Purchase{UserID: u.ID, Ticker: c.Ticker, Price: c.Price, Quantity: c.Quantity, Date: d})
	if err != nil {
		return Reply{}, StateIdle, err
	}
	util.Logf(ctx, logging.Info, "added purchase of %d %s at %s for user %d", p.Quantity, p.Ticker, p.Price, u.ID)

	total := p.Price.Mul(decimal.NewFromInt(p.Quantity))
	return Reply{Text: fmt.Sprintf("✅ Position added successfully!\n\nTicker: %s\nQuantity: %d shares\nPurchase price: %s ₽\nPurchase date: %s\nTotal cost: %s ₽",
		p.Ticker, p.Quantity, p.Price.StringFixed(2), d.Format(transform.DateLayout), total.StringFixed(2)), Keyboard: KeyboardPortfolio}, next, nil
}

func (s *Service) sellDate(ctx context.Context, in Input, c *Conversation, next State) (Reply, State, error) {
	u, ok, err := s.user(ctx, in)
	if err != nil {
		return Reply{}, StateIdle, err
	}
	if !ok {
		return Reply{Text: "Error: user not found.", Keyboard: KeyboardMain}, StateIdle, nil
	}
	d, ok := ParseDate(in.Text, s.now().In(s.loc))
	if !ok {
		return s.invalidDate(), c.State, nil
	}

	sale, err := s.store.AddSale(ctx, model.Sale{UserID: u.ID, Ticker: c.Ticker, Price: c.Price, Quantity: c.Quantity, Date: d})
	if errors.Is(err, db.ErrInsufficientQuantity) {
		available, err := s.store.AvailableQuantity(ctx, u.ID, c.Ticker)
		if err != nil {
			return Reply{}, StateIdle, err
		}
		return insufficient(c.Ticker, c.Quantity, available), StateSellQuantity, nil
	}
	if err != nil {
		return Reply{}, StateIdle, err
	}
	util.Logf(ctx, logging.Info, "added sale of %d %s at %s for user %d", sale.Quantity, sale.Ticker, sale.Price, u.ID)

	total := sale.Price.Mul(decimal.NewFromInt(sale.Quantity))
	return Reply{Text: fmt.Sprintf("✅ Sale recorded successfully!\n\nTicker: %s\nQuantity: %d shares\nSale price: %s ₽\nSale date: %s\nTotal proceeds: %s ₽",
		sale.Ticker, sale.Quantity, sale.Price.StringFixed(2), d.Format(transform.DateLayout), total.StringFixed(2)), Keyboard: KeyboardPortfolio}, next, nil
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

// FormatPortfolio renders positions marked to prices as markdown.
func FormatPortfolio(positions []Position, prices map[string]decimal.NullDecimal) string {
	var sb strings.Builder
	sb.WriteString("📊 Your Portfolio:\n\n")
	for _, p := range positions {
		fmt.Fprintf(&sb, "🔹 *%s*\n", p.Ticker)
		fmt.Fprintf(&sb, "   Quantity: %d shares\n", p.Quantity)
		fmt.Fprintf(&sb, "   Average purchase price: %s ₽\n", p.AveragePrice.StringFixed(2))
		fmt.Fprintf(&sb, "   Total cost: %s ₽\n", p.Cost.StringFixed(2))

		price := prices[p.Ticker]
		if price.Valid {
			v := p.Value(price.Decimal)
			fmt.Fprintf(&sb, "   Current price: %s ₽\n", price.Decimal.StringFixed(2))
			fmt.Fprintf(&sb, "   Current value: %s ₽\n", v.Value.StringFixed(2))
			fmt.Fprintf(&sb, "   Profit/Loss: %s ₽ (%s%%)\n", signed(v.Profit), signed(v.ProfitPercent))
		} else {
			sb.WriteString("   Current price: unavailable\n")
		}

		if len(p.Purchases) > 1 {
			sb.WriteString("\n   Purchases:\n")
			for _, l := range p.Purchases {
				fmt.Fprintf(&sb, "      • %d shares at %s ₽ (%s)", l.Quantity, l.Price.StringFixed(2), l.Date.Format(transform.DateLayout))
				if price.Valid {
					v := l.Value(price.Decimal)
					fmt.Fprintf(&sb, " (%s ₽, %s%%)", signed(v.Profit), signed(v.ProfitPercent))
				}
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
