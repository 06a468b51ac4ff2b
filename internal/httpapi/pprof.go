package httpapi

import (
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"
)

const pprofPrefix = "/debug/pprof"

// mountPprof registers the profiling handlers. They answer 404 unless
// profiling is enabled and, when a token is set, the caller presents it.
func (a *API) mountPprof(r *gin.Engine) {
	g := r.Group(pprofPrefix, a.pprofGate())
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	// heap, goroutine, allocs and the other named profiles
	g.GET("/:profile", func(c *gin.Context) {
		hpprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
	})
}

func (a *API) pprofGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.mu.RLock()
		enabled, token := a.cfg.Pprof, strings.TrimSpace(a.cfg.PprofToken)
		a.mu.RUnlock()
		if !enabled {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if token != "" && !tokenMatches(c.Request, token) {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// tokenMatches accepts "Authorization: Bearer <token>" or ?token=<token>.
func tokenMatches(r *http.Request, token string) bool {
	if got := r.URL.Query().Get("token"); got != "" {
		return got == token
	}
	const p = "Bearer "
	ah := r.Header.Get("Authorization")
	return strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == token
}

// IsLoopbackAddr reports whether a host:port binds only to the local host.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
