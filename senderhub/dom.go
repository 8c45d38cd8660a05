package senderhub

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// firstVisible probes an ordered candidate list and returns the first
// visible match, or nil when nothing matched. Selectors starting with "//"
// are XPath, the rest CSS. Probes never block on absent elements.
func firstVisible(page *rod.Page, selectors []string) *rod.Element {
	for _, sel := range selectors {
		var (
			ok  bool
			el  *rod.Element
			err error
		)
		if strings.HasPrefix(sel, "//") {
			ok, el, err = page.HasX(sel)
		} else {
			ok, el, err = page.Has(sel)
		}
		if err != nil || !ok || el == nil {
			continue
		}
		if visible, err := el.Visible(); err == nil && visible {
			return el
		}
	}
	return nil
}

// click left-clicks an element, falling back to a JS click when the real
// one is intercepted by an overlay.
func click(el *rod.Element) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	_, err := el.Eval(`() => this.click()`)
	return err
}

// clearAndType replaces an input's value with text.
func clearAndType(el *rod.Element, text string) error {
	if _, err := el.Eval(`() => { this.value = ''; }`); err != nil {
		return err
	}
	return el.Input(text)
}
