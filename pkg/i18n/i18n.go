// Package i18n localizes user-facing messages. English is the source
// catalog; Swahili covers the same keys for Kenyan tenants. Catalogs
// live in embedded JSON files, nested by area and flattened to
// dot-notation keys at load time.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"strings"
	"sync"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Supported locales
const (
	LocaleEnglish = "en"
	LocaleSwahili = "sw"
	DefaultLocale = LocaleEnglish
)

type localeKey struct{}

var (
	catalogs     map[string]map[string]string
	catalogsOnce sync.Once
)

func loadCatalogs() {
	catalogsOnce.Do(func() {
		catalogs = make(map[string]map[string]string)
		for _, locale := range []string{LocaleEnglish, LocaleSwahili} {
			data, err := messagesFS.ReadFile("messages/" + locale + ".json")
			if err != nil {
				continue
			}
			var nested map[string]interface{}
			if err := json.Unmarshal(data, &nested); err != nil {
				continue
			}
			flat := make(map[string]string)
			flatten("", nested, flat)
			catalogs[locale] = flat
		}
	})
}

// flatten turns {"payroll": {"rates_missing": "..."}} into
// {"payroll.rates_missing": "..."}. Non-string leaves are skipped.
func flatten(prefix string, src map[string]interface{}, dst map[string]string) {
	for key, value := range src {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case string:
			dst[full] = v
		case map[string]interface{}:
			flatten(full, v, dst)
		}
	}
}

func lookup(locale, key string) (string, bool) {
	loadCatalogs()
	msg, ok := catalogs[locale][key]
	return msg, ok
}

// Localizer resolves message keys for one locale.
type Localizer struct {
	locale string
}

// NewLocalizer returns a localizer for the given locale. Locales the
// catalog does not cover fall back to English.
func NewLocalizer(locale string) *Localizer {
	loadCatalogs()
	if _, ok := catalogs[locale]; !ok {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

// LocalizerFromContext builds a localizer for the locale carried by ctx.
func LocalizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(LocaleFromContext(ctx))
}

// T resolves key in this locale, falling back to English and finally to
// the key itself. Params replace {name} placeholders in the message.
func (l *Localizer) T(key string, params ...map[string]string) string {
	msg, ok := lookup(l.locale, key)
	if !ok {
		msg, ok = lookup(DefaultLocale, key)
	}
	if !ok {
		return key
	}

	if len(params) > 0 {
		for name, value := range params[0] {
			msg = strings.ReplaceAll(msg, "{"+name+"}", value)
		}
	}

	return msg
}

// WithLocale stores the locale in the context.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the locale carried by ctx, or the default.
func LocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage picks the first supported locale from an
// Accept-Language header. Quality weights are ignored; header order
// decides, so "sw-KE,en;q=0.8" resolves to Swahili.
func ParseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := part
		if i := strings.IndexByte(tag, ';'); i >= 0 {
			tag = tag[:i]
		}
		tag = strings.ToLower(strings.TrimSpace(tag))
		base, _, _ := strings.Cut(tag, "-")

		switch base {
		case LocaleSwahili:
			return LocaleSwahili
		case LocaleEnglish:
			return LocaleEnglish
		}
	}
	return DefaultLocale
}

// T translates using the default locale.
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TFromContext translates using the locale from context.
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return LocalizerFromContext(ctx).T(key, params...)
}
