package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speciesProvider() StaticProvider {
	return StaticProvider{
		Enums: map[string]Lookup{
			"species": {
				Values: []string{"zeb", "ele"},
				Names:  map[string]string{"zeb": "Zebra", "ele": "Elephant"},
			},
		},
	}
}

const speciesSchema = `{
  "properties": {
    "species": {"title": "Species", "enum": {{enum___species}}},
    "total_fix_count": {"title": "Fix count"}
  }
}`

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	rendered, err := Render(speciesSchema, speciesProvider())
	require.NoError(t, err)
	assert.Contains(t, rendered, `"value":"zeb"`)
	assert.Contains(t, rendered, `"name":"Zebra"`)
	assert.NotContains(t, rendered, "{{")
}

func TestResolveBuildsLabelMaps(t *testing.T) {
	t.Parallel()

	resolved, err := Resolve(speciesSchema, speciesProvider())
	require.NoError(t, err)

	assert.Equal(t, "Species", resolved.Title("species"))
	assert.Equal(t, "Fix count", resolved.Title("total_fix_count"))
	assert.Equal(t, "unknown_key", resolved.Title("unknown_key"))

	assert.Equal(t, "Zebra", resolved.Label("species", "zeb"))
	assert.Equal(t, "other", resolved.Label("species", "other"))
	assert.Equal(t, "42", resolved.Label("total_fix_count", 42))
}

func TestResolveEmptySchema(t *testing.T) {
	t.Parallel()

	resolved, err := Resolve("", speciesProvider())
	require.NoError(t, err)
	assert.Equal(t, "anything", resolved.Title("anything"))
}

func TestRenderUnknownTableFails(t *testing.T) {
	t.Parallel()

	_, err := Render(`{"properties": {"x": {"enum": {{enum___missing}}}}}`, speciesProvider())
	require.Error(t, err)
}
