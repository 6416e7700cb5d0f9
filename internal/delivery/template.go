package delivery

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer renders campaign message templates with Liquid. Parsed
// templates are cached by key; campaigns re-render the same template for
// every recipient, so the cache is hot after the first send.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template key -> *liquid.Template
}

// NewRenderer builds a Renderer with the loyalty filter set registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "cliente" }}
	r.engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ amount | money }} formats integer cents as a decimal amount.
	r.engine.RegisterFilter("money", func(value any) string {
		var cents int64
		switch v := value.(type) {
		case int:
			cents = int64(v)
		case int64:
			cents = v
		case float64:
			cents = int64(v)
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return v
			}
			cents = n
		default:
			return fmt.Sprintf("%v", value)
		}
		sign := ""
		if cents < 0 {
			sign = "-"
			cents = -cents
		}
		return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	})

	// {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})
}

// Validate compiles a template string, reporting syntax errors.
func (r *Renderer) Validate(tmpl string) error {
	_, err := r.engine.ParseString(tmpl)
	return err
}

// Render produces the message body for one recipient. cacheKey is usually
// the campaign id; pass "" to skip caching. A render failure falls back to
// the raw template so a bad variable never blocks a send.
func (r *Renderer) Render(cacheKey, tmpl string, vars map[string]any) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}
	parsed, err := r.engine.ParseString(tmpl)
	if err != nil {
		return tmpl, err
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, parsed)
	}
	out, err := parsed.RenderString(vars)
	if err != nil {
		return tmpl, err
	}
	return out, nil
}

// Invalidate drops one cached template, used when a campaign is updated.
func (r *Renderer) Invalidate(cacheKey string) {
	r.cache.Delete(cacheKey)
}
