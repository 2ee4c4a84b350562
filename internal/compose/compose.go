// Package compose renders fetched horoscopes into the message sent to the recipient.
package compose

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/goodsign/monday"

	"horoscopebot/internal/content"
)

// Kind selects which field of a content.Result a message uses.
type Kind string

const (
	Daily  Kind = "daily"
	Weekly Kind = "weekly"
)

// Apology is sent once when the composed message could not be delivered.
const Apology = "⚠️ Hubo un problema obteniendo tu horóscopo de hoy. ¡Pero recuerda que eres increíble todos los días! 💕"

const (
	signature    = "_Enviado con amor desde tu bot personal de horóscopos_ 🤖💖"
	dailyClose   = "💕 ¡Que tengas un día maravilloso, mi amor! ✨"
	weeklyClose  = "💫 ¡Que tengas una semana maravillosa, mi amor! ✨"
	dateLayout   = "Monday, 2 de January de 2006"
	unknownEmoji = "✨"
)

// Label is how a subject is introduced in a section heading.
type Label struct {
	Emoji string
	Name  string
}

var defaultLabels = map[content.Subject]Label{
	"aries":       {"🐏", "Aries"},
	"tauro":       {"🐂", "Tauro"},
	"geminis":     {"👯", "Géminis"},
	"cancer":      {"🦀", "Cáncer"},
	"leo":         {"🦁", "Leo"},
	"virgo":       {"🌾", "Virgo"},
	"libra":       {"⚖️", "Libra"},
	"escorpio":    {"🦂", "Escorpio"},
	"sagitario":   {"🏹", "Sagitario"},
	"capricornio": {"🐐", "Capricornio"},
	"acuario":     {"🏺", "Acuario"},
	"piscis":      {"🐟", "Piscis"},
}

// Composer renders messages. The zero value is not usable; use New.
type Composer struct {
	locale monday.Locale
	loc    *time.Location
	labels map[content.Subject]Label
}

type Option func(*Composer)

// WithLocation formats the header date in loc instead of the time's own zone.
func WithLocation(loc *time.Location) Option { return func(c *Composer) { c.loc = loc } }

// WithLabel overrides or adds the heading of one subject.
func WithLabel(subject content.Subject, l Label) Option {
	return func(c *Composer) { c.labels[subject] = l }
}

func New(opts ...Option) *Composer {
	c := &Composer{
		locale: monday.LocaleEsES,
		labels: make(map[content.Subject]Label, len(defaultLabels)),
	}
	for k, v := range defaultLabels {
		c.labels[k] = v
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LabelFor returns the heading for subject; unknown subjects get ✨ and a capitalized name.
func (c *Composer) LabelFor(subject content.Subject) Label {
	if l, ok := c.labels[subject]; ok {
		return l
	}
	return Label{Emoji: unknownEmoji, Name: capitalizeFirst(string(subject))}
}

// Date renders now as "Lunes, 19 de octubre de 2026".
func (c *Composer) Date(now time.Time) string {
	if c.loc != nil {
		now = now.In(c.loc)
	}
	return capitalizeFirst(monday.Format(now, dateLayout, c.locale))
}

// Compose builds the message for kind. Results are rendered in input order;
// a result whose field for kind is absent is left out.
func (c *Composer) Compose(kind Kind, results []content.Result, now time.Time) string {
	var b strings.Builder

	if kind == Weekly {
		b.WriteString("🌟 *Tus Horóscopos Semanales del " + c.Date(now) + "* 🌟\n\n")
	} else {
		b.WriteString("🌟 *Tus Horóscopos del " + c.Date(now) + "* 🌟\n\n")
	}

	for _, r := range results {
		text := r.Daily
		if kind == Weekly {
			text = r.Weekly
		}
		if text == "" {
			continue
		}
		l := c.LabelFor(r.Subject)
		b.WriteString(l.Emoji + " *" + l.Name)
		if kind != Weekly {
			b.WriteString(" - Hoy")
		}
		b.WriteString("*\n" + text + "\n\n")
	}

	if kind == Weekly {
		b.WriteString(weeklyClose)
	} else {
		b.WriteString(dailyClose)
	}
	b.WriteString("\n\n" + signature)
	return b.String()
}

var std = New()

// Compose renders with the default composer.
func Compose(kind Kind, results []content.Result, now time.Time) string {
	return std.Compose(kind, results, now)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
