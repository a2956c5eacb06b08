package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fridgechef/internal/fridge"
	"fridgechef/internal/recipe"
	"fridgechef/internal/session"
	"fridgechef/internal/wizard"
)

// mockExtractor is a mock of the ingredient extractor.
type mockExtractor struct {
	result   recipe.Extraction
	received []fridge.Image
	calls    int
}

func (m *mockExtractor) Extract(ctx context.Context, images []fridge.Image) recipe.Extraction {
	m.calls++
	m.received = images
	return m.result
}

// mockGenerator is a mock of the recipe generator.
type mockGenerator struct {
	received *recipe.Request
	failed   []recipe.Diagnostic
	err      error
}

func (m *mockGenerator) Generate(ctx context.Context, req recipe.Request) (recipe.Generation, error) {
	m.received = &req
	if m.err != nil {
		return recipe.Generation{}, m.err
	}
	var gen recipe.Generation
	for i := 0; i < req.Count; i++ {
		gen.Recipes = append(gen.Recipes, recipe.Recipe{
			Text:    fmt.Sprintf("Recipe text %d", i+1),
			Diet:    req.Diet,
			Cuisine: req.Cuisine,
		})
	}
	gen.Diagnostics = m.failed
	return gen, nil
}

func (m *mockGenerator) MaxCount() int { return recipe.DefaultMaxCount }

// mockArchive is a mock of the recipe archive.
type mockArchive struct {
	recipes         []recipe.Recipe
	receivedDiet    recipe.Diet
	receivedCuisine recipe.Cuisine
}

func (m *mockArchive) ListRecipes(ctx context.Context, diet recipe.Diet, cuisine recipe.Cuisine) ([]recipe.Recipe, error) {
	m.receivedDiet = diet
	m.receivedCuisine = cuisine
	return m.recipes, nil
}

type testClient struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
}

type testServer struct {
	*testClient
	extractor *mockExtractor
	generator *mockGenerator
	sessions  *session.MemoryStore
}

func newTestServer(t *testing.T, archive RecipeArchive) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	extractor := &mockExtractor{}
	generator := &mockGenerator{}
	sessions := session.NewMemoryStore(0, zap.NewNop())
	loader := fridge.NewLoader(fridge.ContentDigest{}, 1024)

	handler := NewHandler(extractor, generator, loader, sessions, archive, zap.NewNop(), Options{})
	router := NewRouter(handler, RouterConfig{}, zap.NewNop())

	return &testServer{
		testClient: &testClient{t: t, router: router},
		extractor:  extractor,
		generator:  generator,
		sessions:   sessions,
	}
}

func (tc *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range tc.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	tc.router.ServeHTTP(rr, req)
	if cookies := rr.Result().Cookies(); len(cookies) > 0 {
		tc.cookies = cookies
	}
	return rr
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	return tc.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (tc *testClient) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := tc.do(req)
	assert.Equal(tc.t, http.StatusSeeOther, rr.Code, "POST %s", path)
	assert.Equal(tc.t, "/", rr.Header().Get("Location"))
	return rr
}

type upload struct {
	name string
	data []byte
}

func (tc *testClient) upload(files ...upload) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		require.NoError(tc.t, err)
		_, err = part.Write(f.data)
		require.NoError(tc.t, err)
	}
	require.NoError(tc.t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := tc.do(req)
	assert.Equal(tc.t, http.StatusSeeOther, rr.Code)
	return rr
}

// page renders the index, which also consumes pending flash messages.
func (tc *testClient) page() string {
	rr := tc.get("/")
	require.Equal(tc.t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

type stateSnapshot struct {
	Stage       string             `json:"stage"`
	Step        int                `json:"step"`
	ImageCount  int                `json:"image_count"`
	Ingredients []string           `json:"ingredients"`
	Recipes     []recipe.Recipe    `json:"recipes"`
	Preferences recipe.Preferences `json:"preferences"`
	Count       int                `json:"count"`
}

func (tc *testClient) state() stateSnapshot {
	rr := tc.get("/api/state")
	require.Equal(tc.t, http.StatusOK, rr.Code)
	var snap stateSnapshot
	require.NoError(tc.t, json.Unmarshal(rr.Body.Bytes(), &snap))
	return snap
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIndex_NewSessionSetsCookie(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.get("/")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Step 1 of 4")
	require.Len(t, ts.cookies, 1)
	assert.Equal(t, CookieName, ts.cookies[0].Name)
	_, err := uuid.Parse(ts.cookies[0].Value)
	assert.NoError(t, err)
	assert.Equal(t, 1, ts.sessions.Len())
}

func TestStaleCookieStartsNewSession(t *testing.T) {
	ts := newTestServer(t, nil)
	stale := uuid.NewString()
	ts.cookies = []*http.Cookie{{Name: CookieName, Value: stale}}

	ts.get("/")

	require.Len(t, ts.cookies, 1)
	assert.NotEqual(t, stale, ts.cookies[0].Value)
}

func TestWizardFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.result = recipe.Extraction{Ingredients: recipe.Ingredients{"Milk", "Eggs"}}

	ts.post("/start", nil)
	assert.Equal(t, "upload", ts.state().Stage)

	// Forward without images is refused.
	ts.post("/next", nil)
	assert.Contains(t, ts.page(), wizard.MsgNeedImages)
	assert.Equal(t, "upload", ts.state().Stage)

	red := pngBytes(t, color.RGBA{R: 255, A: 255})
	blue := pngBytes(t, color.RGBA{B: 255, A: 255})
	ts.upload(upload{"red.png", red}, upload{"blue.png", blue}, upload{"red-again.png", red})

	body := ts.page()
	assert.Contains(t, body, "2 new image(s) added successfully!")
	assert.Contains(t, body, "1 duplicate image(s) were not added.")
	assert.Equal(t, 2, ts.state().ImageCount)

	// Flash messages are shown once.
	assert.NotContains(t, ts.page(), "new image(s) added")

	thumb := ts.get("/images/1")
	assert.Equal(t, http.StatusOK, thumb.Code)
	assert.Equal(t, "image/jpeg", thumb.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, ts.get("/images/3").Code)

	ts.post("/next", nil)
	assert.Equal(t, "identify", ts.state().Stage)

	ts.post("/next", nil)
	assert.Contains(t, ts.page(), wizard.MsgNeedIngredients)

	ts.post("/ingredients/identify", nil)
	assert.Len(t, ts.extractor.received, 2)
	assert.Equal(t, []string{"Milk", "Eggs"}, ts.state().Ingredients)

	ts.post("/ingredients", url.Values{"ingredients": {"Milk\n Eggs \n\nButter"}})
	assert.Equal(t, []string{"Milk", "Eggs", "Butter"}, ts.state().Ingredients)

	ts.post("/next", nil)
	assert.Equal(t, "generate", ts.state().Stage)

	ts.post("/recipes/generate", url.Values{"diet": {"vegan"}, "cuisine": {"Italian"}, "count": {"2"}})
	require.NotNil(t, ts.generator.received)
	assert.Equal(t, 2, ts.generator.received.Count)
	assert.Equal(t, recipe.DietVegan, ts.generator.received.Diet)
	assert.Equal(t, recipe.CuisineItalian, ts.generator.received.Cuisine)
	assert.Equal(t, recipe.Ingredients{"Milk", "Eggs", "Butter"}, ts.generator.received.Ingredients)

	snap := ts.state()
	require.Len(t, snap.Recipes, 2)
	assert.Equal(t, "Recipe text 1", snap.Recipes[0].Text)
	assert.Equal(t, recipe.Preferences{Diet: recipe.DietVegan, Cuisine: recipe.CuisineItalian}, snap.Preferences)
	assert.Equal(t, 2, snap.Count)
	assert.Contains(t, ts.page(), "Recipe text 2")

	pdf := ts.get("/recipes.pdf")
	assert.Equal(t, http.StatusOK, pdf.Code)
	assert.Equal(t, "application/pdf", pdf.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=recipes.pdf", pdf.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF-")))

	// Going back keeps what later steps produced.
	ts.post("/back", nil)
	snap = ts.state()
	assert.Equal(t, "identify", snap.Stage)
	assert.Len(t, snap.Recipes, 2)

	ts.post("/reset", nil)
	snap = ts.state()
	assert.Equal(t, "home", snap.Stage)
	assert.Zero(t, snap.ImageCount)
	assert.Empty(t, snap.Ingredients)
	assert.Empty(t, snap.Recipes)
}

func TestUpload_RejectsUnsupportedFile(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.upload(upload{"notes.gif", []byte("GIF89a")}, upload{"broken.png", []byte("not a png")})

	body := ts.page()
	assert.Contains(t, body, "invalid file type")
	assert.Contains(t, body, "failed to decode image broken.png")
	assert.Zero(t, ts.state().ImageCount)
}

func TestUpload_NoFiles(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.upload()

	assert.Contains(t, ts.page(), "Please choose at least one image.")
}

func TestIdentify_RequiresImages(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post("/ingredients/identify", nil)

	assert.Zero(t, ts.extractor.calls)
	assert.Contains(t, ts.page(), "Please upload images of your fridge contents first.")
}

func TestIdentify_ReportsDiagnostics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.result = recipe.Extraction{
		Ingredients: recipe.Ingredients{"Milk"},
		Diagnostics: []recipe.Diagnostic{{Action: "identifying items", Subject: "Image 2", Err: errors.New("vision down")}},
	}
	ts.upload(upload{"a.png", pngBytes(t, color.White)}, upload{"b.png", pngBytes(t, color.Black)})
	ts.page()

	ts.post("/ingredients/identify", nil)

	assert.Contains(t, ts.page(), "An error occurred while identifying items (Image 2): vision down")
	assert.Equal(t, []string{"Milk"}, ts.state().Ingredients)
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"count too high", url.Values{"count": {"9"}}, "Number of recipes must be between 1 and 5."},
		{"count not a number", url.Values{"count": {"lots"}}, "Number of recipes must be between 1 and 5."},
		{"unknown diet", url.Values{"diet": {"carnivore"}, "count": {"1"}}, "unknown dietary preference"},
		{"unknown cuisine", url.Values{"cuisine": {"martian"}, "count": {"1"}}, "unknown cuisine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.post("/ingredients", url.Values{"ingredients": {"Milk"}})

			ts.post("/recipes/generate", tt.form)

			assert.Nil(t, ts.generator.received)
			assert.Contains(t, ts.page(), tt.want)
		})
	}
}

func TestGenerate_RequiresIngredients(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post("/recipes/generate", url.Values{"count": {"1"}})

	assert.Nil(t, ts.generator.received)
	assert.Contains(t, ts.page(), "Please identify ingredients first.")
}

func TestGenerate_PartialFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generator.failed = []recipe.Diagnostic{{Action: "generating the recipe", Subject: "Recipe 3", Err: errors.New("quota exceeded")}}
	ts.post("/ingredients", url.Values{"ingredients": {"Milk"}})

	ts.post("/recipes/generate", url.Values{"count": {"2"}})

	assert.Contains(t, ts.page(), "An error occurred while generating the recipe (Recipe 3): quota exceeded")
	assert.Len(t, ts.state().Recipes, 2)
}

func TestJump(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post("/stage/generate", nil)
	assert.Contains(t, ts.page(), wizard.MsgNeedIngredients)
	assert.Equal(t, "home", ts.state().Stage)

	ts.post("/stage/upload", nil)
	assert.Equal(t, "upload", ts.state().Stage)

	ts.post("/stage/home", nil)
	assert.Equal(t, "home", ts.state().Stage)

	rr := ts.do(httptest.NewRequest(http.MethodPost, "/stage/checkout", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJump_GetDoesNotMoveStage(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.post("/start", nil)

	rr := ts.get("/stage/home")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "upload", ts.state().Stage)
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t, nil)
	other := &testClient{t: t, router: ts.router}

	ts.post("/start", nil)
	ts.upload(upload{"a.png", pngBytes(t, color.White)})
	ts.post("/next", nil)
	ts.post("/ingredients", url.Values{"ingredients": {"Milk"}})
	require.Equal(t, "identify", ts.state().Stage)

	snap := other.state()
	assert.Equal(t, "home", snap.Stage)
	assert.Zero(t, snap.ImageCount)
	assert.Empty(t, snap.Ingredients)
	require.Len(t, other.cookies, 1)
	require.Len(t, ts.cookies, 1)
	assert.NotEqual(t, ts.cookies[0].Value, other.cookies[0].Value)

	// The other session has no images, so it cannot move past upload.
	other.post("/start", nil)
	other.post("/next", nil)
	assert.Contains(t, other.page(), wizard.MsgNeedImages)
	assert.Equal(t, "upload", other.state().Stage)

	// Its flash messages never reach the first session.
	other.post("/next", nil)
	assert.NotContains(t, ts.page(), wizard.MsgNeedImages)
	assert.Equal(t, "identify", ts.state().Stage)
	assert.Equal(t, []string{"Milk"}, ts.state().Ingredients)
	assert.Equal(t, 2, ts.sessions.Len())
}

func TestClearImages(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upload(upload{"a.png", pngBytes(t, color.White)})
	require.Equal(t, 1, ts.state().ImageCount)

	ts.post("/images/clear", nil)

	assert.Zero(t, ts.state().ImageCount)
}

func TestExportPDF_NoRecipes(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, ts.get("/recipes.pdf").Code)
}

func TestListRecipes(t *testing.T) {
	t.Run("no archive", func(t *testing.T) {
		ts := newTestServer(t, nil)
		assert.Equal(t, http.StatusServiceUnavailable, ts.get("/recipes").Code)
	})

	t.Run("filters", func(t *testing.T) {
		archive := &mockArchive{recipes: []recipe.Recipe{{ID: 1, Text: "Salad", Diet: recipe.DietVegan, Cuisine: recipe.CuisineAny}}}
		ts := newTestServer(t, archive)

		rr := ts.get("/recipes?diet=vegan")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, recipe.DietVegan, archive.receivedDiet)
		assert.Equal(t, recipe.Cuisine(""), archive.receivedCuisine)
		var got []recipe.Recipe
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "Salad", got[0].Text)
	})

	t.Run("bad filter", func(t *testing.T) {
		ts := newTestServer(t, &mockArchive{})
		assert.Equal(t, http.StatusBadRequest, ts.get("/recipes?cuisine=martian").Code)
	})
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rr := ts.get("/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, ts.cookies)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.get("/healthz")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = ts.do(req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}

func TestRouter_CORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(&mockExtractor{}, &mockGenerator{}, fridge.NewLoader(fridge.ContentDigest{}, 0),
		session.NewMemoryStore(0, zap.NewNop()), nil, zap.NewNop(), Options{})
	router := NewRouter(handler, RouterConfig{AllowedOrigins: []string{"http://localhost:8081"}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:8081", rr.Header().Get("Access-Control-Allow-Origin"))
}
