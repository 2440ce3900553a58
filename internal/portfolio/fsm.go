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

import "strings"

// State is the step a chat is at.
type State string

const (
	StateIdle         State = ""
	StateAwaitPhone   State = "await_phone"
	StateAddTicker    State = "add_ticker"
	StateAddPrice     State = "add_price"
	StateAddQuantity  State = "add_quantity"
	StateAddDate      State = "add_date"
	StateSellTicker   State = "sell_ticker"
	StateSellPrice    State = "sell_price"
	StateSellQuantity State = "sell_quantity"
	StateSellDate     State = "sell_date"
)

// InputKind classifies an incoming message.
type InputKind int

const (
	InputText InputKind = iota
	InputStart
	InputContact
	InputPortfolio
	InputAdd
	InputSell
	InputCancel
	InputMainMenu
)

const (
	ButtonPortfolio = "Portfolio"
	ButtonAdd       = "Add Securities"
	ButtonSell      = "Sell Securities"
	ButtonCancel    = "Cancel"
	ButtonMainMenu  = "Main Menu"
	ButtonPhone     = "Share Phone Number"
)

func Classify(text string, hasContact bool) InputKind {
	if hasContact {
		return InputContact
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		return InputStart
	case text == ButtonPortfolio:
		return InputPortfolio
	case text == ButtonAdd:
		return InputAdd
	case text == ButtonSell:
		return InputSell
	case strings.EqualFold(text, ButtonCancel):
		return InputCancel
	case text == ButtonMainMenu:
		return InputMainMenu
	default:
		return InputText
	}
}

// Action is the handler a transition runs.
type Action int

const (
	ActionIgnore Action = iota
	ActionStart
	ActionRegister
	ActionShowPortfolio
	ActionBeginAdd
	ActionBeginSell
	ActionCancel
	ActionMainMenu
	ActionAddTicker
	ActionAddPrice
	ActionAddQuantity
	ActionAddDate
	ActionSellTicker
	ActionSellPrice
	ActionSellQuantity
	ActionSellDate
)

type transitionKey struct {
	state State
	input InputKind
}

// Transition is the action to run and the state to enter when it
// succeeds. An action rejecting its input leaves the state unchanged.
type Transition struct {
	Action Action
	Next   State
}

var stepTransitions = map[transitionKey]Transition{
	{StateAwaitPhone, InputContact}: {ActionRegister, StateIdle},
	{StateAddTicker, InputText}:     {ActionAddTicker, StateAddPrice},
	{StateAddPrice, InputText}:      {ActionAddPrice, StateAddQuantity},
	{StateAddQuantity, InputText}:   {ActionAddQuantity, StateAddDate},
	{StateAddDate, InputText}:       {ActionAddDate, StateIdle},
	{StateSellTicker, InputText}:    {ActionSellTicker, StateSellPrice},
	{StateSellPrice, InputText}:     {ActionSellPrice, StateSellQuantity},
	{StateSellQuantity, InputText}:  {ActionSellQuantity, StateSellDate},
	{StateSellDate, InputText}:      {ActionSellDate, StateIdle},
}

// anyState transitions take precedence over the step of the current wizard.
var anyState = map[InputKind]Transition{
	InputStart:     {ActionStart, StateIdle},
	InputPortfolio: {ActionShowPortfolio, StateIdle},
	InputAdd:       {ActionBeginAdd, StateAddTicker},
	InputSell:      {ActionBeginSell, StateSellTicker},
	InputCancel:    {ActionCancel, StateIdle},
	InputMainMenu:  {ActionMainMenu, StateIdle},
}

func Next(state State, input InputKind) Transition {
	if t, ok := anyState[input]; ok {
		return t
	}
	if t, ok := stepTransitions[transitionKey{state, input}]; ok {
		return t
	}
	return Transition{Action: ActionIgnore, Next: state}
}
