package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// NewLibraryLoader returns a vitals.Loader that imports the ES module at
// url inside the page. Function exports become registration functions that
// call into the module; any other export is passed through as its typeof
// string so shape validation rejects it.
func NewLibraryLoader(page *Page, url string) vitals.Loader {
	return func(ctx context.Context) (vitals.Module, error) {
		var kinds map[string]string
		err := page.run(ctx, chromedp.Evaluate(importScript(url), &kinds, awaitPromise))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vitals.ErrModuleLoad, err)
		}
		return moduleFromKinds(page, kinds), nil
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func moduleFromKinds(page *Page, kinds map[string]string) vitals.Module {
	if kinds == nil {
		return nil
	}
	module := make(vitals.Module, len(kinds))
	for name, kind := range kinds {
		if kind != "function" {
			module[name] = kind
			continue
		}
		module[name] = page.libraryRegistration(name)
	}
	return module
}

// libraryRegistration wraps one export of the imported module
func (p *Page) libraryRegistration(export string) vitals.RegisterFunc {
	return func(report func(vitals.Metric)) error {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrPageClosed
		}
		id := p.allocID()
		p.metrics[id] = report
		p.mu.Unlock()

		if err := p.evaluate(p.ctx, libraryRegisterScript(bindingName, id, export)); err != nil {
			p.removeHandler(id)
			return fmt.Errorf("register %s: %w", export, err)
		}
		return nil
	}
}
