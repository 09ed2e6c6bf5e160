// Package tgui formats text for Telegram's HTML parse mode.
package tgui

import (
	"html"
	"strings"
)

// H is HTML that is already safe to send with ParseMode "HTML".
type H string

func (h H) String() string { return string(h) }

// Esc escapes user text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name string, inner H) H { return H("<" + name + ">" + string(inner) + "</" + name + ">") }

func B(s string) H    { return tag("b", Esc(s)) }
func I(s string) H    { return tag("i", Esc(s)) }
func Code(s string) H { return tag("code", Esc(s)) }

// Label escapes s after clipping it to max runes. Task titles come from
// free text and can be arbitrarily long.
func Label(s string, max int) H { return Esc(TruncRunes(s, max)) }

// Join joins the non-blank parts with sep.
func Join(sep string, parts ...H) H {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) != "" {
			out = append(out, string(p))
		}
	}
	return H(strings.Join(out, sep))
}
