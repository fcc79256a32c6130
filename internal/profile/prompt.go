package profile

import (
	_ "embed"
	"strings"
)

//go:embed prompts/fintech.txt
var fintechPrompt string

//go:embed prompts/software_product.txt
var softwareProductPrompt string

// textUnavailable replaces the page text when only a screenshot is available.
const textUnavailable = "(text not available - use the screenshot only)"

const screenshotNote = "A screenshot of the website's landing page is attached. Use it alongside the text.\n"

const styleSection = `
Also judge the visual style of the website from the screenshot:
- "Legacy": dated design, dense layouts, early-2010s or older look
- "Mixed": partially refreshed, inconsistent design language
- "Modern": current design standards, clean typography and spacing
`

const styleJSON = ",\n  \"website_style\": \"Legacy\" or \"Mixed\" or \"Modern\""

// BuildPrompt fills the profile's template. The style section and style JSON
// key are injected only when the profile supports style and a screenshot is
// attached, since style cannot be judged from text alone.
func BuildPrompt(p *Profile, companyName, pageText string, hasScreenshot bool) string {
	text := strings.TrimSpace(pageText)
	if text == "" {
		text = textUnavailable
	}

	note := ""
	if hasScreenshot {
		note = screenshotNote
	}

	section, jsonKey := "", ""
	if p.HasStyle && hasScreenshot {
		section = styleSection
		jsonKey = styleJSON
	}

	r := strings.NewReplacer(
		"{company_name}", companyName,
		"{page_text}", text,
		"{screenshot_note}", note,
		"{style_section}", section,
		"{style_json}", jsonKey,
	)
	return r.Replace(p.PromptTemplate)
}
