package middleware

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Transport is the protocol a request arrived on. It decides how an
// authentication failure is reported back.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "websocket"
)

// CookieSource yields the cookies sent with a request
type CookieSource interface {
	// Cookie returns the value of the named cookie and whether it was sent
	Cookie(name string) (string, bool)

	// Transport reports which protocol the cookies came with
	Transport() Transport
}

// RequestCookies reads cookies from a plain HTTP request
type RequestCookies struct {
	r *http.Request
}

// NewRequestCookies wraps r
func NewRequestCookies(r *http.Request) RequestCookies {
	return RequestCookies{r: r}
}

func (c RequestCookies) Cookie(name string) (string, bool) {
	return readCookie(c.r, name)
}

func (c RequestCookies) Transport() Transport {
	return TransportHTTP
}

// HandshakeCookies reads cookies from a WebSocket upgrade request
type HandshakeCookies struct {
	r *http.Request
}

// NewHandshakeCookies wraps an upgrade request
func NewHandshakeCookies(r *http.Request) HandshakeCookies {
	return HandshakeCookies{r: r}
}

func (c HandshakeCookies) Cookie(name string) (string, bool) {
	return readCookie(c.r, name)
}

func (c HandshakeCookies) Transport() Transport {
	return TransportWebSocket
}

// CookieSourceFor picks the cookie source matching how r arrived
func CookieSourceFor(r *http.Request) CookieSource {
	if websocket.IsWebSocketUpgrade(r) {
		return NewHandshakeCookies(r)
	}
	return NewRequestCookies(r)
}

func readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}
