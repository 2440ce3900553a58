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

package transform

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ajjensen13/marketfeed/internal/model"
)

// word characters in any script, so Cyrillic hashtags are kept
var tagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractTags returns the lower-cased, de-duplicated hashtags of text in
// sorted order. Text without hashtags yields an empty, non-nil slice.
func ExtractTags(text string) []string {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	ret := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		ret = append(ret, tag)
	}
	sort.Strings(ret)
	return ret
}

// NewsItem builds the stored form of a channel message.
func NewsItem(channel string, m model.Message) model.NewsItem {
	return model.NewsItem{
		MsgID:   m.ID,
		Channel: channel,
		Date:    m.Date.UTC(),
		Tags:    ExtractTags(m.Text),
		Text:    m.Text,
	}
}
