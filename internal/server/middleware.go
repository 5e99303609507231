package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CSRF double-submit names, shared with the client.
const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRFToken"
)

const sessionKey = "session"

// Paths reachable without a CSRF token; they establish the session.
var csrfExempt = map[string]bool{
	"/auth/wallet/nonce":  true,
	"/auth/wallet/verify": true,
}

// csrf hands out a token cookie and requires it echoed in a header on
// state-changing requests.
func (s *Server) csrf() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(CSRFCookie)
		if err != nil || cookie == "" {
			cookie = newCSRFToken()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CSRFCookie, cookie, int((365 * 24 * time.Hour).Seconds()), "/", "", s.cfg.SecureCookies, false)
			if c.Request.Method != http.MethodGet && !csrfExempt[c.Request.URL.Path] {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF token missing or invalid"})
				return
			}
			c.Next()
			return
		}

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || csrfExempt[c.Request.URL.Path] {
			c.Next()
			return
		}
		header := c.GetHeader(CSRFHeader)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF token missing or invalid"})
			return
		}
		c.Next()
	}
}

func newCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// session attaches the signed-in wallet, if any. Requests without a
// valid session are served anonymously.
func (s *Server) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Sessions == nil {
			c.Next()
			return
		}
		token, err := c.Cookie(SessionCookie)
		if err == nil && token != "" {
			claims, err := s.deps.Sessions.Parse(token)
			if err != nil {
				s.logger.Debug("ignoring invalid session", zap.Error(err))
			} else {
				c.Set(sessionKey, claims)
			}
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *SessionClaims {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*SessionClaims)
	return claims
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields...)
			return
		}
		s.logger.Debug("request served", fields...)
	}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
