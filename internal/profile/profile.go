// Package profile declares the qualification schemas: which boolean a
// company is tested for and which output columns accompany it.
package profile

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Valid website style classifications, ordered legacy to modern.
const (
	StyleLegacy = "Legacy"
	StyleMixed  = "Mixed"
	StyleModern = "Modern"
)

// ValidStyles is the closed style enum. Out-of-enum model values are coerced
// to StyleMixed by the result mapper.
var ValidStyles = map[string]bool{
	StyleLegacy: true,
	StyleMixed:  true,
	StyleModern: true,
}

// Profile describes one qualification schema.
type Profile struct {
	Name             string   `yaml:"name"`
	QualifyKey       string   `yaml:"qualify_key"`
	QualifyLabel     string   `yaml:"qualify_label"`
	HasStyle         bool     `yaml:"has_style"`
	Columns          []string `yaml:"columns"`
	ColumnsWithStyle []string `yaml:"columns_with_style"`
	// JSONKeys are the keys expected in the model's JSON response besides
	// confidence and company_name.
	JSONKeys []string `yaml:"json_keys"`
	// PromptTemplate is the prompt with {company_name}, {page_text},
	// {screenshot_note}, {style_section} and {style_json} placeholders.
	PromptTemplate string `yaml:"prompt_template"`
}

// ResultColumns returns the output column list, including the style column
// only when screenshots are active and the profile supports style.
func (p *Profile) ResultColumns(useScreenshots bool) []string {
	if useScreenshots && p.HasStyle && len(p.ColumnsWithStyle) > 0 {
		return p.ColumnsWithStyle
	}
	return p.Columns
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Profile{}
)

func init() {
	builtins := []*Profile{
		{
			Name:             "fintech",
			QualifyKey:       "is_fintech",
			QualifyLabel:     "fintech",
			HasStyle:         true,
			Columns:          []string{"status", "is_fintech", "confidence", "fintech_niche", "fintech_reason", "analyzed_at"},
			ColumnsWithStyle: []string{"status", "is_fintech", "confidence", "fintech_niche", "fintech_reason", "website_style", "analyzed_at"},
			JSONKeys:         []string{"is_fintech", "fintech_niche", "fintech_reason", "website_style"},
			PromptTemplate:   fintechPrompt,
		},
		{
			Name:           "software_product",
			QualifyKey:     "has_product",
			QualifyLabel:   "has product",
			HasStyle:       false,
			Columns:        []string{"status", "has_product", "confidence", "product_type", "reason", "analyzed_at"},
			JSONKeys:       []string{"has_product", "product_type", "reason"},
			PromptTemplate: softwareProductPrompt,
		},
	}
	for _, p := range builtins {
		registry[p.Name] = p
	}
}

// Get returns the named profile.
func Get(name string) (*Profile, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, eris.Errorf("profile: unknown profile %q (available: %v)", name, names())
	}
	return p, nil
}

// Names returns the registered profile names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

// Register validates and adds a profile to the registry. Existing names are
// overwritten, which lets a custom profiles file refine a builtin.
func Register(p *Profile) error {
	if p.Name == "" {
		return eris.New("profile: name is required")
	}
	if p.QualifyKey == "" {
		return eris.Errorf("profile: %s: qualify_key is required", p.Name)
	}
	if p.PromptTemplate == "" {
		return eris.Errorf("profile: %s: prompt_template is required", p.Name)
	}
	if p.QualifyLabel == "" {
		p.QualifyLabel = p.Name
	}
	if len(p.Columns) == 0 {
		cols := []string{"status", p.QualifyKey, "confidence"}
		cols = append(cols, p.JSONKeys...)
		p.Columns = append(dedupe(cols), "analyzed_at")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
