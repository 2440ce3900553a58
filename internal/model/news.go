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

package model

import (
	"time"
)

// NewsItem is a stored channel message. (MsgID, Channel) is unique.
type NewsItem struct {
	ID      int64     `json:"id"`
	MsgID   int64     `json:"msg_id"`
	Channel string    `json:"channel"`
	Date    time.Time `json:"date"`
	Tags    []string  `json:"tags"`
	Text    string    `json:"text"`
}

// Message is a channel message as fetched from the news source.
type Message struct {
	ID   int64
	Date time.Time
	Text string
}

// ChannelRef is a resolved channel handle.
type ChannelRef struct {
	Name       string
	ID         int64
	AccessHash int64
}

type PollCursor struct {
	Channel      string    `json:"channel"`
	LastPollTime time.Time `json:"last_poll_time"`
}
