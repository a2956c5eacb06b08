package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"fridgechef/internal/recipe"
	"fridgechef/internal/session"
	"fridgechef/internal/wizard"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/*.html"))

type stageLink struct {
	Slug    string
	Name    string
	Step    int
	Current bool
}

type pageData struct {
	Slug      string
	StageName string
	Step      int
	Total     int
	Percent   int
	Stages    []stageLink
	Flashes   []session.Flash

	Images []int

	Ingredients     recipe.Ingredients
	IngredientLines string

	Recipes     []recipe.Recipe
	Diets       []recipe.Diet
	Cuisines    []recipe.Cuisine
	Preferences recipe.Preferences
	Count       int
	Counts      []int
}

// Index renders the current stage and consumes pending flash messages.
func (h *Handler) Index(c *gin.Context) {
	s, done, err := h.begin(c)
	if err != nil {
		h.serverError(c, err)
		return
	}
	defer done()

	data := h.page(s.State, s.TakeFlashes())
	if err := h.sessions.Save(c.Request.Context(), s); err != nil {
		h.serverError(c, err)
		return
	}
	c.HTML(http.StatusOK, "page.html", data)
}

func (h *Handler) page(st wizard.State, flashes []session.Flash) pageData {
	step, total, fraction := wizard.Progress(st.Stage)

	stages := make([]stageLink, 0, len(wizard.Stages))
	for i, stage := range wizard.Stages {
		stages = append(stages, stageLink{
			Slug:    stage.Slug(),
			Name:    stage.String(),
			Step:    i + 1,
			Current: stage == st.Stage,
		})
	}

	images := make([]int, st.Images.Len())
	for i := range images {
		images[i] = i + 1
	}

	counts := make([]int, h.generator.MaxCount())
	for i := range counts {
		counts[i] = i + 1
	}

	return pageData{
		Slug:            st.Stage.Slug(),
		StageName:       st.Stage.String(),
		Step:            step,
		Total:           total,
		Percent:         int(fraction * 100),
		Stages:          stages,
		Flashes:         flashes,
		Images:          images,
		Ingredients:     st.Ingredients,
		IngredientLines: st.Ingredients.Lines(),
		Recipes:         st.Recipes,
		Diets:           recipe.Diets,
		Cuisines:        recipe.Cuisines,
		Preferences:     st.Preferences,
		Count:           st.Count,
		Counts:          counts,
	}
}
