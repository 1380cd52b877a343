// Package extract reads the fixed contact schema out of a resolved profile
// page: it activates every reveal control for obfuscated fields, parses the
// structured contact panel with fallbacks per field, and sanitizes values
// that are really wall/error text.
package extract

import (
	"encoding/json"
	"fmt"
	"time"
)

// StrategyKind tags how a selector strategy locates elements.
type StrategyKind string

const (
	StrategyCSS       StrategyKind = "css-strategy"
	StrategyTextMatch StrategyKind = "text-match-strategy"
)

// Strategy is one way of locating a set of controls. Strategies for the same
// target are evaluated in priority order and their matches are unioned.
type Strategy struct {
	Kind  StrategyKind
	Query string
}

// revealStrategies locate the controls that disclose obfuscated contact
// fields, most specific first. Both activation paths are generated from this
// list so the selectors cannot drift apart.
var revealStrategies = []Strategy{
	{StrategyCSS, `a[data-action*="unobfuscate-details#revealUnobfuscatedContent"]`},
	{StrategyCSS, `a.text-secondary.fw-bold.text-decoration-none`},
	{StrategyTextMatch, "Show"},
}

// revealScriptTemplate unions the strategies' matches in page context,
// deduplicated by element identity, and clicks each with a pause so the
// asynchronous unobfuscation can complete. Evaluates to the click count.
const revealScriptTemplate = `(async function() {
	const controls = new Set();
	for (const sel of %s) {
		document.querySelectorAll(sel).forEach(el => controls.add(el));
	}
	const terms = %s;
	if (terms.length > 0) {
		document.querySelectorAll('a').forEach(el => {
			const title = el.getAttribute('title') || '';
			if (terms.some(t => el.innerText.includes(t) || title.includes(t))) controls.add(el);
		});
	}
	let clicked = 0;
	for (const el of controls) {
		try {
			el.scrollIntoView({block: 'center'});
			el.click();
			clicked++;
		} catch (e) {}
		await new Promise(r => setTimeout(r, %d));
	}
	return clicked;
})()`

// revealScript renders the in-page activation script from the strategy list.
func revealScript(strategies []Strategy, pause time.Duration) string {
	css, terms := []string{}, []string{}
	for _, st := range strategies {
		switch st.Kind {
		case StrategyCSS:
			css = append(css, st.Query)
		case StrategyTextMatch:
			terms = append(terms, st.Query)
		}
	}
	cssJSON, _ := json.Marshal(css)
	termsJSON, _ := json.Marshal(terms)
	return fmt.Sprintf(revealScriptTemplate, cssJSON, termsJSON, pause.Milliseconds())
}

// clickSelectors converts the strategies to session selectors for the
// direct-click fallback. Text matches become XPath queries, which the
// session dispatches by their "//" prefix.
func clickSelectors(strategies []Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, st := range strategies {
		switch st.Kind {
		case StrategyCSS:
			out = append(out, st.Query)
		case StrategyTextMatch:
			out = append(out, fmt.Sprintf(`//a[contains(., %q)]`, st.Query))
		}
	}
	return out
}
