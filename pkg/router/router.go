// Package router implements the dispatch fallthrough of spec.md §4.1 for
// any request that didn't match one of the /_/ admin routes gin already
// registered: upstream proxy mode, then the function subsystem, then 404.
// Grounded on the teacher's pkg/router/router.go ReverseProxy
// Director/ErrorHandler idiom, repurposed from host/path-prefix service
// routing to this fixed two-step fallthrough.
package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/scripting"
	"github.com/queryrun/server/internal/storage"
)

// Dispatcher serves everything that falls outside the admin route set.
type Dispatcher struct {
	proxyEnabled bool
	proxy        *httputil.ReverseProxy
	appEnabled   bool

	functionDB *storage.DB
	cacheDB    *storage.DB
	invalDB    *storage.DB
	engine     *scripting.Engine
	l1         *cache.L1
}

// New builds a Dispatcher. proxyPort is only consulted when proxyEnabled.
func New(proxyEnabled bool, proxyPort int, appEnabled bool, functionDB, cacheDB, invalDB *storage.DB, engine *scripting.Engine, l1 *cache.L1) *Dispatcher {
	d := &Dispatcher{
		proxyEnabled: proxyEnabled,
		appEnabled:   appEnabled,
		functionDB:   functionDB,
		cacheDB:      cacheDB,
		invalDB:      invalDB,
		engine:       engine,
		l1:           l1,
	}
	if proxyEnabled {
		target, _ := url.Parse(fmt.Sprintf("http://localhost:%d", proxyPort))
		d.proxy = &httputil.ReverseProxy{
			Director: func(req *http.Request) {
				req.URL.Scheme = target.Scheme
				req.URL.Host = target.Host
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(fmt.Sprintf("Error: %v", err)))
			},
		}
	}
	return d
}

// Handle is wired as gin's NoRoute handler.
func (d *Dispatcher) Handle(c *gin.Context) {
	if c.Request.URL.Path == "" || c.Request.URL.Path == "/" && !d.proxyEnabled && !d.appEnabled {
		c.Status(http.StatusNotFound)
		return
	}

	if d.proxyEnabled {
		d.proxy.ServeHTTP(c.Writer, c.Request)
		return
	}
	if d.appEnabled {
		d.serveFunction(c)
		return
	}
	c.Status(http.StatusNotFound)
}

func (d *Dispatcher) serveFunction(c *gin.Context) {
	ctx := c.Request.Context()

	source, err := lookupFunction(ctx, d.functionDB, c.Request.Method, c.Request.URL.Path)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	version, err := storage.InvalidationVersion(ctx, d.invalDB)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}

	if cached, ok, err := cache.GetL2(ctx, d.cacheDB, c.Request.URL.Path, version); err == nil && ok {
		for k, v := range cached.Headers {
			c.Header(k, v)
		}
		c.Data(cached.Status, cached.Headers["content-type"], cached.Body)
		return
	}

	body, err := readBody(c)
	if err != nil {
		c.String(http.StatusBadRequest, "Error: %v", err)
		return
	}

	headers := map[string]string{}
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	resp, err := d.engine.Invoke(ctx, source, scripting.Request{
		Method:  c.Request.Method,
		URL:     c.Request.URL.String(),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "%v", err)
		return
	}

	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Data(resp.Status, resp.Headers["content-type"], []byte(resp.Body))

	if resp.CacheTTLMs > 0 && resp.Status >= 200 && resp.Status < 300 {
		l2resp := cache.Response{Status: resp.Status, Headers: resp.Headers, Body: []byte(resp.Body)}
		ttl := time.Duration(resp.CacheTTLMs) * time.Millisecond
		_ = cache.PutL2(ctx, d.cacheDB, c.Request.URL.Path, l2resp, ttl, version)
	}
}

type functionRow struct {
	Function []byte `db:"function"`
}

func lookupFunction(ctx context.Context, db *storage.DB, method, path string) (string, error) {
	var row functionRow
	err := db.GetContext(ctx, &row, "SELECT function FROM function WHERE method = ? AND path = ? AND active = 1", method, path)
	if err != nil {
		return "", fmt.Errorf("no function for %s %s", method, path)
	}
	return string(row.Function), nil
}

func readBody(c *gin.Context) (string, error) {
	if c.Request.Body == nil {
		return "", nil
	}
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := c.Request.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}
