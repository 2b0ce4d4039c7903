package emodul

import "net/http"

const (
	webOrigin = "https://emodul.eu"
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
)

// buildHeaders returns the outgoing header set for a request. An empty token
// yields the anonymous browser set; a token yields the bearer set. A non-empty
// referer adds the Referer and Origin the web frontend sends.
func buildHeaders(token, referer string) http.Header {
	h := http.Header{}
	if token == "" {
		h.Set("Accept", "application/json, text/plain, */*")
		h.Set("User-Agent", userAgent)
	} else {
		h.Set("Accept", "application/json")
		h.Set("Authorization", "Bearer "+token)
	}
	h.Set("Accept-Encoding", "gzip")
	if referer != "" {
		h.Set("Referer", referer)
		h.Set("Origin", webOrigin)
		h.Set("User-Agent", userAgent)
	}
	return h
}

func loginReferer() string { return webOrigin + "/login" }

func controlReferer(moduleUDID string) string {
	return webOrigin + "/web/" + moduleUDID + "/control"
}
