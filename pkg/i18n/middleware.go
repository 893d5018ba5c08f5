package i18n

import (
	"net/http"
)

// Middleware resolves the request locale from the Accept-Language
// header and stores it in the request context, where error rendering
// picks it up.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := ParseAcceptLanguage(r.Header.Get("Accept-Language"))
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}
