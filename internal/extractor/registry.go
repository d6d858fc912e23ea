package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"articlepipe/internal/config"
)

// DefaultSelector matches article paragraphs on Medium-style pages.
const DefaultSelector = "article p"

// Rule binds a CSS selector to the hosts of one site.
type Rule struct {
	Name     string
	Hosts    []string
	Selector string
}

// Registry keeps a mapping from hosts to their extraction rules.
type Registry struct {
	fallback string
	rules    map[string]Rule
}

// NewRegistry builds a registry with the given fallback selector.
func NewRegistry(fallback string) *Registry {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultSelector
	}
	return &Registry{fallback: fallback, rules: map[string]Rule{}}
}

// FromConfig registers every configured site.
func FromConfig(fallback string, sites []config.SiteConfig) (*Registry, error) {
	reg := NewRegistry(fallback)
	for _, site := range sites {
		if err := reg.Register(Rule{Name: site.Name, Hosts: site.Hosts, Selector: site.Selector}); err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}
	}
	return reg, nil
}

// Register adds or replaces a rule for each of its hosts.
func (r *Registry) Register(rule Rule) error {
	if strings.TrimSpace(rule.Selector) == "" {
		return fmt.Errorf("rule %s has no selector", rule.Name)
	}
	if len(rule.Hosts) == 0 {
		return fmt.Errorf("rule %s has no hosts", rule.Name)
	}
	if r.rules == nil {
		r.rules = map[string]Rule{}
	}
	for _, host := range rule.Hosts {
		r.rules[normalizeHost(host)] = rule
	}
	return nil
}

// Resolve returns the selector for rawURL. Subdomains inherit the rule of
// their parent domain; unknown hosts get the fallback.
func (r *Registry) Resolve(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return r.fallback
	}

	host := normalizeHost(parsed.Hostname())
	for host != "" {
		if rule, ok := r.rules[host]; ok {
			return rule.Selector
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			break
		}
		host = host[dot+1:]
	}
	return r.fallback
}

// Extract joins the trimmed text of every element matching selector.
// Elements without text are skipped; no match yields an empty string.
func Extract(doc *goquery.Document, selector string) string {
	parts := make([]string, 0)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
