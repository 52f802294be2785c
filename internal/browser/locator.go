// File: internal/browser/locator.go
package browser

import (
	"fmt"
	"strings"
)

// Mechanism is the lookup method a Locator uses.
type Mechanism string

const (
	// ByCSS matches a CSS selector.
	ByCSS Mechanism = "css"
	// ByXPath matches a structural XPath expression.
	ByXPath Mechanism = "xpath"
	// ByText matches elements whose normalized text equals the pattern.
	ByText Mechanism = "text"
)

// Locator describes one way to find a logical UI element, independent of
// whether the live page structure currently matches it. Resolution takes an
// ordered list of locators and tries them strictly in order; the first one
// that yields a usable element wins. There is no scoring or merging.
type Locator struct {
	Mechanism Mechanism
	Pattern   string
}

// CSS builds a CSS-selector locator.
func CSS(pattern string) Locator { return Locator{Mechanism: ByCSS, Pattern: pattern} }

// XPath builds a structural-path locator.
func XPath(pattern string) Locator { return Locator{Mechanism: ByXPath, Pattern: pattern} }

// Text builds a locator matching elements by exact normalized text.
func Text(text string) Locator { return Locator{Mechanism: ByText, Pattern: text} }

func (l Locator) String() string {
	return fmt.Sprintf("%s(%s)", l.Mechanism, l.Pattern)
}

// AsXPath rewrites the locator as an XPath expression. ByText locators have
// no native driver mechanism and are always evaluated this way.
func (l Locator) AsXPath() string {
	switch l.Mechanism {
	case ByXPath:
		return l.Pattern
	case ByText:
		return fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(l.Pattern))
	default:
		return ""
	}
}

// xpathLiteral quotes a string for embedding in an XPath expression.
// XPath 1.0 has no escape syntax, so strings containing both quote kinds
// fall back to a concat() of safe pieces.
func xpathLiteral(s string) string {
	hasSingle, hasDouble := false, false
	for _, r := range s {
		switch r {
		case '\'':
			hasSingle = true
		case '"':
			hasDouble = true
		}
	}
	switch {
	case !hasDouble:
		return `"` + s + `"`
	case !hasSingle:
		return "'" + s + "'"
	default:
		parts := make([]string, 0, 4)
		for i, piece := range strings.Split(s, `"`) {
			if i > 0 {
				parts = append(parts, `'"'`)
			}
			if piece != "" {
				parts = append(parts, `"`+piece+`"`)
			}
		}
		return "concat(" + strings.Join(parts, ",") + ")"
	}
}
