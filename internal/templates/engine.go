// internal/templates/engine.go
package templates

import (
	"sync"

	"notification-pipeline/internal/common/crypto"

	"github.com/aymerick/raymond"
)

const defaultParsedLimit = 512

// Engine renders Handlebars sources and keeps up to limit parsed templates keyed by the
// digest of their source. The oldest parse is dropped first once the limit is reached.
type Engine struct {
	limit int

	mu     sync.Mutex
	parsed map[string]*raymond.Template
	order  []string
}

func NewEngine() *Engine {
	return &Engine{limit: defaultParsedLimit, parsed: make(map[string]*raymond.Template)}
}

// Render executes source against data. Unknown variables render empty.
func (e *Engine) Render(source string, data map[string]interface{}) (string, error) {
	tpl, err := e.parse(source)
	if err != nil {
		return "", err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return tpl.Exec(data)
}

func (e *Engine) parse(source string) (*raymond.Template, error) {
	key := crypto.Digest(source)

	e.mu.Lock()
	tpl, ok := e.parsed[key]
	e.mu.Unlock()
	if ok {
		return tpl, nil
	}

	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.parsed[key]; ok {
		return existing, nil
	}
	for len(e.order) >= e.limit {
		delete(e.parsed, e.order[0])
		e.order = e.order[1:]
	}
	e.parsed[key] = tpl
	e.order = append(e.order, key)
	return tpl, nil
}

func (e *Engine) size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.parsed)
}
