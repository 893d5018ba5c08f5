package i18n

import (
	"context"
	"testing"
)

func TestLocalizerT(t *testing.T) {
	en := NewLocalizer("en")
	sw := NewLocalizer("sw")

	t.Run("resolves nested keys", func(t *testing.T) {
		if got := en.T("payroll.run_not_draft"); got != "only draft payroll runs can be modified" {
			t.Errorf("T() = %q", got)
		}
	})

	t.Run("interpolates params", func(t *testing.T) {
		got := en.T("payroll.rates_missing", map[string]string{"period": "2026-01"})
		want := "no statutory rates configured for 2026-01"
		if got != want {
			t.Errorf("T() = %q, want %q", got, want)
		}
	})

	t.Run("translates to swahili", func(t *testing.T) {
		got := sw.T("errors.not_found", map[string]string{"resource": "mfanyakazi"})
		want := "mfanyakazi haipatikani"
		if got != want {
			t.Errorf("T() = %q, want %q", got, want)
		}
	})

	t.Run("unknown locale falls back to english", func(t *testing.T) {
		fr := NewLocalizer("fr")
		if got := fr.T("errors.unauthorized"); got != "authentication required" {
			t.Errorf("T() = %q", got)
		}
	})

	t.Run("unknown key returns the key", func(t *testing.T) {
		if got := en.T("payroll.no_such_key"); got != "payroll.no_such_key" {
			t.Errorf("T() = %q", got)
		}
	})
}

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"en", "en"},
		{"en-US,en;q=0.9", "en"},
		{"sw", "sw"},
		{"sw-KE,en;q=0.8", "sw"},
		{"en-GB,sw;q=0.9", "en"},
		{"fr-FR,de;q=0.9", "en"},
		{"fr, sw-TZ;q=0.7", "sw"},
	}

	for _, tt := range tests {
		if got := ParseAcceptLanguage(tt.header); got != tt.want {
			t.Errorf("ParseAcceptLanguage(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestLocaleContext(t *testing.T) {
	ctx := WithLocale(context.Background(), "sw")
	if got := LocaleFromContext(ctx); got != "sw" {
		t.Errorf("LocaleFromContext() = %q, want sw", got)
	}
	if got := LocaleFromContext(context.Background()); got != DefaultLocale {
		t.Errorf("LocaleFromContext() = %q, want %q", got, DefaultLocale)
	}

	got := TFromContext(ctx, "payroll.rates_missing", map[string]string{"period": "2026-01"})
	want := "hakuna viwango vya kisheria vilivyowekwa kwa 2026-01"
	if got != want {
		t.Errorf("TFromContext() = %q, want %q", got, want)
	}
}
