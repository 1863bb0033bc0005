package auth

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
)

// cookieWriter defers the session cookie until the first header or body
// write, so handlers can still modify the session after calling helpers
// that touch the response.
type cookieWriter struct {
	gin.ResponseWriter
	sessions      *SessionManager
	request       *http.Request
	headerSent    bool
	cookieWritten bool
}

func (w *cookieWriter) WriteHeader(code int) {
	if !w.headerSent {
		w.headerSent = true
		w.flushSessionCookie()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) WriteHeaderNow() {
	if !w.headerSent {
		w.headerSent = true
		w.flushSessionCookie()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.headerSent = true
		w.flushSessionCookie()
	}
	return w.ResponseWriter.Write(b)
}

// flushSessionCookie commits modified session data and sets the cookie.
// Destroyed sessions get an expired cookie so the browser drops it.
func (w *cookieWriter) flushSessionCookie() {
	if w.cookieWritten {
		return
	}
	w.cookieWritten = true

	ctx := w.request.Context()
	switch w.sessions.Status(ctx) {
	case scs.Modified:
		token, expiry, err := w.sessions.Commit(ctx)
		if err != nil {
			return
		}
		w.sessions.WriteSessionCookie(ctx, w.ResponseWriter, token, expiry)
	case scs.Destroyed:
		w.sessions.WriteSessionCookie(ctx, w.ResponseWriter, "", time.Time{})
	}
}

func (w *cookieWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}

// SessionLoadSave is the Gin equivalent of scs's LoadAndSave middleware.
// It must run before any handler that reads or writes session state.
func (sm *SessionManager) SessionLoadSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if cookie, err := c.Request.Cookie(sm.Cookie.Name); err == nil {
			token = cookie.Value
		}

		ctx, err := sm.Load(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Request = c.Request.WithContext(ctx)

		cw := &cookieWriter{
			ResponseWriter: c.Writer,
			sessions:       sm,
			request:        c.Request,
		}
		c.Writer = cw

		c.Next()

		// Handlers that write nothing (204, redirects via WriteHeaderNow
		// skipped) still need the cookie committed.
		if !cw.headerSent {
			cw.flushSessionCookie()
		}
	}
}
