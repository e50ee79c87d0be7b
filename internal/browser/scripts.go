package browser

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// snapshotJS marks elements without a rendered box and copies live form
// values into attributes, serialises the document, then removes the marks
// so the page is left as it was.
const snapshotJS = `() => {
	const HIDDEN = 'data-tablexport-hidden';
	const VALUE = 'data-tablexport-value';
	const marked = [];
	for (const el of document.querySelectorAll('*')) {
		const style = window.getComputedStyle(el);
		if (el.getClientRects().length === 0 || style.visibility === 'hidden') {
			el.setAttribute(HIDDEN, '1');
			marked.push([el, HIDDEN]);
		}
		if (el.matches('input, select, textarea')) {
			let v = el.value;
			if (el.type === 'checkbox' || el.type === 'radio') {
				v = String(el.checked);
			} else if (el.tagName === 'SELECT' && el.selectedIndex >= 0) {
				v = el.options[el.selectedIndex].text;
			}
			el.setAttribute(VALUE, v == null ? '' : String(v));
			marked.push([el, VALUE]);
		}
	}
	const out = document.documentElement.outerHTML;
	for (const [el, attr] of marked) {
		el.removeAttribute(attr);
	}
	return out;
}`

const clickJS = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) {
		return false;
	}
	el.click();
	return true;
}`

const escapeJS = `() => {
	document.dispatchEvent(new KeyboardEvent('keydown', {
		key: 'Escape', code: 'Escape', keyCode: 27, which: 27, bubbles: true
	}));
	return true;
}`

const locationJS = `() => window.location.href`

// invocation turns a function literal and its arguments into an expression
// for drivers that only evaluate expressions.
func invocation(fn string, args ...any) (string, error) {
	var enc bytes.Buffer
	e := json.NewEncoder(&enc)
	e.SetEscapeHTML(false)
	for i, a := range args {
		if i > 0 {
			enc.WriteByte(',')
		}
		if err := e.Encode(a); err != nil {
			return "", fmt.Errorf("encode argument %d: %w", i, err)
		}
		enc.Truncate(enc.Len() - 1)
	}
	return fmt.Sprintf("(%s)(%s)", fn, enc.String()), nil
}
