package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipekit/internal/models"
)

const jsonRecipe = `{
	"10": {
		"new_parent_id": 20,
		"new_name": "Hero New",
		"takes": {
			"Main": {"new_name": "Hero", "versions": [1, 2]},
			"Main@BBox": {"versions": [1]}
		}
	},
	"20": {"new_parent_id": null, "new_code": "LIB"},
	"30": {}
}`

const yamlRecipe = `
10:
  new_parent_id: 20
  new_name: Hero New
  takes:
    Main:
      new_name: Hero
      versions: [1, 2]
    Main@BBox:
      versions: [1]
20:
  new_parent_id: null
  new_code: LIB
30: {}
`

func assertSampleRecipe(t *testing.T, recipe Recipe) {
	t.Helper()

	require.Len(t, recipe, 3)
	assert.Equal(t, []uint{10, 20, 30}, recipe.IDs())

	hero := recipe[10]
	require.NotNil(t, hero.NewParent.ID)
	assert.True(t, hero.NewParent.Set)
	assert.Equal(t, uint(20), *hero.NewParent.ID)
	assert.Equal(t, "Hero New", hero.NewName)
	assert.Equal(t, []string{"Main", "Main@BBox"}, hero.TakeNames())
	assert.Equal(t, "Hero", hero.Takes["Main"].NewName)
	assert.Equal(t, []int{1, 2}, hero.Takes["Main"].Versions)

	assert.True(t, recipe[20].NewParent.IsRoot())
	assert.Equal(t, "LIB", recipe[20].NewCode)

	assert.False(t, recipe[30].NewParent.Set)
	assert.Equal(t, "inherit", recipe[30].NewParent.String())
}

func TestParseRecipeJSON(t *testing.T) {
	recipe, err := ParseRecipeJSON([]byte(jsonRecipe))
	require.NoError(t, err)
	assertSampleRecipe(t, recipe)
}

func TestParseRecipeYAML(t *testing.T) {
	recipe, err := ParseRecipeYAML([]byte(yamlRecipe))
	require.NoError(t, err)
	assertSampleRecipe(t, recipe)
}

func TestRecipeJSONRoundTrip(t *testing.T) {
	recipe, err := ParseRecipeJSON([]byte(jsonRecipe))
	require.NoError(t, err)

	data, err := json.Marshal(recipe)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw["20"], "new_parent_id")
	assert.Nil(t, raw["20"]["new_parent_id"])
	assert.NotContains(t, raw["30"], "new_parent_id")

	again, err := ParseRecipeJSON(data)
	require.NoError(t, err)
	assertSampleRecipe(t, again)
}

func TestLoadRecipe(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"recipe.json": jsonRecipe,
		"recipe.yaml": yamlRecipe,
		"recipe.yml":  yamlRecipe,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		recipe, err := LoadRecipe(path)
		require.NoError(t, err, name)
		assertSampleRecipe(t, recipe)
	}

	_, err := LoadRecipe(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRecipeValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"version zero", `{"1": {"takes": {"Main": {"versions": [0]}}}}`},
		{"duplicate version", `{"1": {"takes": {"Main": {"versions": [1, 1]}}}}`},
		{"own parent", `{"1": {"new_parent_id": 1}}`},
		{"parent zero", `{"1": {"new_parent_id": 0}}`},
		{"null entry", `{"1": null}`},
		{"null take", `{"1": {"takes": {"Main": null}}}`},
		{"not a mapping", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecipeJSON([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRecipe)
		})
	}
}

func TestRecipeBuilders(t *testing.T) {
	hero := &models.Task{ID: 10, Name: "Hero"}
	library := &models.Task{ID: 20, Name: "Library"}
	outsider := &models.Task{ID: 30, Name: "Outsider"}

	recipe := Recipe{}
	entry := recipe.AddTask(hero)
	assert.Same(t, entry, recipe.AddTask(hero))
	recipe.AddTask(library)

	require.NoError(t, recipe.SetTargetParent(hero, library))
	require.NoError(t, recipe.SetTargetParent(library, nil))
	assert.Equal(t, uint(20), *recipe[10].NewParent.ID)
	assert.True(t, recipe[20].NewParent.IsRoot())

	require.NoError(t, recipe.AddTake(hero, "Main", "", 1, 2))
	require.NoError(t, recipe.AddTake(hero, "Main", "Hero", 2, 3))
	assert.Equal(t, []int{1, 2, 3}, recipe[10].Takes["Main"].Versions)
	assert.Equal(t, "Hero", recipe[10].Takes["Main"].NewName)

	assert.ErrorIs(t, recipe.SetTargetParent(outsider, library), ErrInvalidRecipe)
	assert.ErrorIs(t, recipe.AddTake(outsider, "Main", ""), ErrInvalidRecipe)
	assert.ErrorIs(t, recipe.AddTake(hero, "", ""), ErrInvalidRecipe)
	assert.ErrorIs(t, recipe.SetTargetParent(hero, hero), ErrInvalidRecipe)

	require.NoError(t, recipe.Validate())
	order, err := OrderTasks(recipe)
	require.NoError(t, err)
	assert.Equal(t, []uint{20, 10}, order)
}
