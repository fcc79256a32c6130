package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuiltins(t *testing.T) {
	t.Parallel()

	fintech, err := Get("fintech")
	require.NoError(t, err)
	assert.Equal(t, "is_fintech", fintech.QualifyKey)
	assert.True(t, fintech.HasStyle)

	product, err := Get("software_product")
	require.NoError(t, err)
	assert.Equal(t, "has_product", product.QualifyKey)
	assert.False(t, product.HasStyle)

	_, err = Get("nonexistent")
	assert.Error(t, err)
}

func TestResultColumns(t *testing.T) {
	t.Parallel()

	fintech, err := Get("fintech")
	require.NoError(t, err)

	withShots := fintech.ResultColumns(true)
	assert.Contains(t, withShots, "website_style")

	withoutShots := fintech.ResultColumns(false)
	assert.NotContains(t, withoutShots, "website_style")
	assert.Contains(t, withoutShots, "is_fintech")

	// Style column never appears for profiles without style support.
	product, err := Get("software_product")
	require.NoError(t, err)
	assert.NotContains(t, product.ResultColumns(true), "website_style")
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	fintech, err := Get("fintech")
	require.NoError(t, err)

	t.Run("text only", func(t *testing.T) {
		t.Parallel()
		prompt := BuildPrompt(fintech, "Acme Corp", "We process payments.", false)
		assert.Contains(t, prompt, "Acme Corp")
		assert.Contains(t, prompt, "We process payments.")
		assert.NotContains(t, prompt, "website_style")
		assert.NotContains(t, prompt, "screenshot of the website")
	})

	t.Run("with screenshot", func(t *testing.T) {
		t.Parallel()
		prompt := BuildPrompt(fintech, "Acme Corp", "We process payments.", true)
		assert.Contains(t, prompt, "website_style")
		assert.Contains(t, prompt, "screenshot of the website")
	})

	t.Run("screenshot without text uses placeholder", func(t *testing.T) {
		t.Parallel()
		prompt := BuildPrompt(fintech, "Acme Corp", "   ", true)
		assert.Contains(t, prompt, textUnavailable)
	})

	t.Run("no style section for styleless profile", func(t *testing.T) {
		t.Parallel()
		product, err := Get("software_product")
		require.NoError(t, err)
		prompt := BuildPrompt(product, "Acme Corp", "We sell a CRM.", true)
		assert.NotContains(t, prompt, "website_style")
	})
}

func TestRegisterDerivesColumns(t *testing.T) {
	p := &Profile{
		Name:           "healthtech",
		QualifyKey:     "is_healthtech",
		JSONKeys:       []string{"is_healthtech", "healthtech_niche", "reason"},
		PromptTemplate: "Company: {company_name}\n{page_text}",
	}
	require.NoError(t, Register(p))

	got, err := Get("healthtech")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"status", "is_healthtech", "confidence", "healthtech_niche", "reason", "analyzed_at"},
		got.Columns)
	assert.Equal(t, "healthtech", got.QualifyLabel)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	assert.Error(t, Register(&Profile{QualifyKey: "k", PromptTemplate: "t"}))
	assert.Error(t, Register(&Profile{Name: "n", PromptTemplate: "t"}))
	assert.Error(t, Register(&Profile{Name: "n", QualifyKey: "k"}))
}

func TestLoadCustomProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")

	yaml := strings.TrimSpace(`
profiles:
  - name: agency
    qualify_key: is_agency
    qualify_label: agency
    json_keys: [is_agency, agency_type, reason]
    prompt_template: |
      Company: {company_name}
      {page_text}
`)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	require.NoError(t, LoadCustomProfiles(path))

	p, err := Get("agency")
	require.NoError(t, err)
	assert.Equal(t, "is_agency", p.QualifyKey)
	assert.Contains(t, p.Columns, "agency_type")

	assert.Error(t, LoadCustomProfiles(filepath.Join(dir, "missing.yaml")))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("profiles: []\n"), 0o644))
	assert.Error(t, LoadCustomProfiles(empty))
}
