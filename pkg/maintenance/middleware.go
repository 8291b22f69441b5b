package maintenance

import (
	"html/template"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/refit/pkg/metrics"
)

var pageTemplate = template.Must(template.New("maintenance").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#f5f5f4;color:#1c1917;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0}
main{max-width:32rem;padding:2rem;text-align:center}
h1{font-size:1.5rem;margin-bottom:.5rem}
p{line-height:1.5}
.eta{color:#57534e;font-size:.9rem}
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .EstimatedEnd}}
<p class="eta">Expected back by {{.EstimatedEnd}}</p>
{{- end}}
</main>
</body>
</html>
`))

type pageData struct {
	Title        string
	Message      string
	EstimatedEnd string
}

// Middleware serves the degraded response to gated clients and forwards
// everything else to next
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypassed(r.URL.Path) || !g.ShouldGate(g.ClientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.GatedRequestsTotal.Inc()
		g.ServeDegraded(w, r)
	})
}

// ServeDegraded writes the 503 maintenance page
func (g *Gate) ServeDegraded(w http.ResponseWriter, r *http.Request) {
	cfg := g.current.Load().cfg

	data := pageData{Title: cfg.Title, Message: cfg.Message}
	if cfg.EstimatedEnd != nil {
		data.EstimatedEnd = cfg.EstimatedEnd.UTC().Format(time.RFC1123)
		if wait := cfg.EstimatedEnd.Sub(g.now()); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		} else {
			w.Header().Set("Retry-After", "60")
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusServiceUnavailable)
	if r.Method == http.MethodHead {
		return
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		g.logger.Error().Err(err).Msg("Failed to render maintenance page")
	}
}

// ClientIP returns the address of the requesting client
func (g *Gate) ClientIP(r *http.Request) string {
	if g.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (g *Gate) bypassed(path string) bool {
	for _, prefix := range g.opts.BypassPaths {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
