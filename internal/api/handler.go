package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fridgechef/internal/export"
	"fridgechef/internal/fridge"
	"fridgechef/internal/recipe"
	"fridgechef/internal/session"
	"fridgechef/internal/wizard"
)

// CookieName carries the session ID.
const CookieName = "fridgechef_session"

// IngredientExtractor turns images into ingredients.
type IngredientExtractor interface {
	Extract(ctx context.Context, images []fridge.Image) recipe.Extraction
}

// RecipeGenerator produces recipes from ingredients.
type RecipeGenerator interface {
	Generate(ctx context.Context, req recipe.Request) (recipe.Generation, error)
	MaxCount() int
}

// ImageLoader decodes and normalizes an uploaded file.
type ImageLoader interface {
	Load(name string, data []byte) (fridge.Image, error)
}

// RecipeArchive lists previously generated recipes.
type RecipeArchive interface {
	ListRecipes(ctx context.Context, diet recipe.Diet, cuisine recipe.Cuisine) ([]recipe.Recipe, error)
}

// Options tunes request handling.
type Options struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	SecureCookie   bool
	CookieMaxAge   time.Duration
}

// Handler handles HTTP requests.
type Handler struct {
	extractor IngredientExtractor
	generator RecipeGenerator
	loader    ImageLoader
	sessions  session.Store
	archive   RecipeArchive
	logger    *zap.Logger
	opts      Options
	locks     *sessionLocks
}

// NewHandler creates a new Handler. archive may be nil when no database is
// configured.
func NewHandler(extractor IngredientExtractor, generator RecipeGenerator, loader ImageLoader, sessions session.Store, archive RecipeArchive, logger *zap.Logger, opts Options) *Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 45 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handler{
		extractor: extractor,
		generator: generator,
		loader:    loader,
		sessions:  sessions,
		archive:   archive,
		logger:    logger,
		opts:      opts,
		locks:     newSessionLocks(),
	}
}

// Start leaves the welcome page.
func (h *Handler) Start(c *gin.Context) {
	h.act(c, func(_ context.Context, s *session.Session) {
		h.move(s, func(st wizard.State) (wizard.State, error) { return wizard.Jump(st, wizard.UploadImages) })
	})
}

// Next moves forward one stage if its prerequisite is met.
func (h *Handler) Next(c *gin.Context) {
	h.act(c, func(_ context.Context, s *session.Session) {
		h.move(s, wizard.Next)
	})
}

// Back moves backward one stage.
func (h *Handler) Back(c *gin.Context) {
	h.act(c, func(_ context.Context, s *session.Session) {
		s.State = wizard.Back(s.State)
	})
}

// Jump is the sidebar navigation.
func (h *Handler) Jump(c *gin.Context) {
	target, err := wizard.ParseStage(c.Param("stage"))
	if err != nil {
		c.String(http.StatusNotFound, "Unknown step")
		return
	}
	h.act(c, func(_ context.Context, s *session.Session) {
		h.move(s, func(st wizard.State) (wizard.State, error) { return wizard.Jump(st, target) })
	})
}

func (h *Handler) move(s *session.Session, transition func(wizard.State) (wizard.State, error)) {
	next, err := transition(s.State)
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		s.AddFlash(session.LevelError, verr.Message)
		return
	}
	s.State = next
}

// UploadImages adds multipart "files" to the image store, skipping
// duplicates.
func (h *Handler) UploadImages(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	form, formErr := c.MultipartForm()

	h.act(c, func(_ context.Context, s *session.Session) {
		if formErr != nil {
			s.AddFlash(session.LevelError, fmt.Sprintf("Could not read the upload: %s", formErr.Error()))
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			s.AddFlash(session.LevelWarning, "Please choose at least one image.")
			return
		}

		var images []fridge.Image
		for _, file := range files {
			img, err := h.readImage(file)
			if err != nil {
				h.logger.Info("upload rejected", zap.String("file", file.Filename), zap.Error(err))
				s.AddFlash(session.LevelWarning, fmt.Sprintf("Image was not added: %s", err.Error()))
				continue
			}
			images = append(images, img)
		}

		var res wizard.AddResult
		s.State, res = wizard.AddImages(s.State, images...)
		if res.Added > 0 {
			s.AddFlash(session.LevelSuccess, fmt.Sprintf("%d new image(s) added successfully!", res.Added))
		}
		if res.Duplicates > 0 {
			s.AddFlash(session.LevelInfo, fmt.Sprintf("%d duplicate image(s) were not added.", res.Duplicates))
		}
	})
}

func (h *Handler) readImage(file *multipart.FileHeader) (fridge.Image, error) {
	src, err := file.Open()
	if err != nil {
		return fridge.Image{}, fmt.Errorf("open file err: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fridge.Image{}, fmt.Errorf("read image err: %w", err)
	}
	return h.loader.Load(file.Filename, data)
}

// ClearImages empties the image store.
func (h *Handler) ClearImages(c *gin.Context) {
	h.act(c, func(_ context.Context, s *session.Session) {
		s.State = wizard.ClearImages(s.State)
	})
}

// Image serves the normalized JPEG of image N, 1-based.
func (h *Handler) Image(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid image index")
		return
	}
	s, done, err := h.begin(c)
	if err != nil {
		h.serverError(c, err)
		return
	}
	defer done()

	img, ok := s.State.Images.At(index - 1)
	if !ok {
		c.String(http.StatusNotFound, "Image not found")
		return
	}
	c.Data(http.StatusOK, "image/jpeg", img.JPEG)
}

// IdentifyIngredients runs the extractor over every stored image and
// replaces the ingredient set with the result.
func (h *Handler) IdentifyIngredients(c *gin.Context) {
	h.act(c, func(ctx context.Context, s *session.Session) {
		if s.State.Images.Empty() {
			s.AddFlash(session.LevelWarning, "Please upload images of your fridge contents first.")
			return
		}

		res := h.extractor.Extract(ctx, s.State.Images.Images())
		for _, d := range res.Diagnostics {
			s.AddFlash(session.LevelError, d.Message())
		}
		s.State = wizard.SetIngredients(s.State, res.Ingredients)

		switch {
		case len(res.Ingredients) > 0:
			s.AddFlash(session.LevelSuccess, fmt.Sprintf("Identified %d ingredient(s).", len(res.Ingredients)))
		case len(res.Diagnostics) == 0:
			s.AddFlash(session.LevelInfo, "No ingredients were identified. You can add them by hand.")
		}
	})
}

// EditIngredients replaces the ingredient set with the newline-separated
// "ingredients" field.
func (h *Handler) EditIngredients(c *gin.Context) {
	items := recipe.ParseIngredientLines(c.PostForm("ingredients"))
	h.act(c, func(_ context.Context, s *session.Session) {
		s.State = wizard.SetIngredients(s.State, items)
		s.AddFlash(session.LevelSuccess, "Ingredient list updated.")
	})
}

// GenerateRecipes reads diet, cuisine and count and asks the generator for
// that many recipes.
func (h *Handler) GenerateRecipes(c *gin.Context) {
	dietField, cuisineField := c.PostForm("diet"), c.PostForm("cuisine")
	countField := c.DefaultPostForm("count", "1")

	h.act(c, func(ctx context.Context, s *session.Session) {
		if len(s.State.Ingredients) == 0 {
			s.AddFlash(session.LevelWarning, "Please identify ingredients first.")
			return
		}

		diet, err := recipe.ParseDiet(dietField)
		if err != nil {
			s.AddFlash(session.LevelError, err.Error())
			return
		}
		cuisine, err := recipe.ParseCuisine(cuisineField)
		if err != nil {
			s.AddFlash(session.LevelError, err.Error())
			return
		}
		count, err := strconv.Atoi(countField)
		if err != nil || count < 1 || count > h.generator.MaxCount() {
			s.AddFlash(session.LevelError, fmt.Sprintf("Number of recipes must be between 1 and %d.", h.generator.MaxCount()))
			return
		}

		prefs := recipe.Preferences{Diet: diet, Cuisine: cuisine}
		gen, err := h.generator.Generate(ctx, recipe.Request{
			Ingredients: s.State.Ingredients,
			Preferences: prefs,
			Count:       count,
		})
		if err != nil {
			s.AddFlash(session.LevelError, err.Error())
			return
		}
		for _, d := range gen.Diagnostics {
			s.AddFlash(session.LevelError, d.Message())
		}
		s.State = wizard.SetRecipes(s.State, prefs, count, gen.Recipes)
	})
}

// ExportPDF downloads the current recipes.
func (h *Handler) ExportPDF(c *gin.Context) {
	s, done, err := h.begin(c)
	if err != nil {
		h.serverError(c, err)
		return
	}
	defer done()

	if len(s.State.Recipes) == 0 {
		c.String(http.StatusNotFound, "No recipes to export")
		return
	}

	doc, err := export.PDF(s.State.Recipes)
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.FileName))
	c.Data(http.StatusOK, export.ContentType, doc)
}

// ListRecipes handles requests to retrieve archived recipes by cuisine or
// dietary preference.
func (h *Handler) ListRecipes(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recipe archive is not configured"})
		return
	}

	var diet recipe.Diet
	if q := c.Query("diet"); q != "" {
		d, err := recipe.ParseDiet(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		diet = d
	}
	var cuisine recipe.Cuisine
	if q := c.Query("cuisine"); q != "" {
		cu, err := recipe.ParseCuisine(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cuisine = cu
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	recipes, err := h.archive.ListRecipes(ctx, diet, cuisine)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.String(http.StatusRequestTimeout, "Database query timed out after 5 seconds")
			return
		}
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// Reset discards the whole wizard state.
func (h *Handler) Reset(c *gin.Context) {
	h.act(c, func(_ context.Context, s *session.Session) {
		s.State = wizard.Reset()
		s.Flashes = nil
	})
}

// State returns a JSON snapshot of the session.
func (h *Handler) State(c *gin.Context) {
	s, done, err := h.begin(c)
	if err != nil {
		h.serverError(c, err)
		return
	}
	defer done()

	step, total, fraction := wizard.Progress(s.State.Stage)
	c.JSON(http.StatusOK, gin.H{
		"stage":       s.State.Stage,
		"step":        step,
		"total":       total,
		"progress":    fraction,
		"image_count": s.State.Images.Len(),
		"ingredients": s.State.Ingredients,
		"recipes":     s.State.Recipes,
		"preferences": s.State.Preferences,
		"count":       s.State.Count,
	})
}

// act runs one user action against the caller's session, saves it and
// redirects to the page. External calls made by fn share a deadline of
// RequestTimeout.
func (h *Handler) act(c *gin.Context, fn func(ctx context.Context, s *session.Session)) {
	s, done, err := h.begin(c)
	if err != nil {
		h.serverError(c, err)
		return
	}
	defer done()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.RequestTimeout)
	fn(ctx, s)
	cancel()

	if err := h.sessions.Save(c.Request.Context(), s); err != nil {
		h.serverError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// begin locks and loads the caller's session, creating one when the cookie
// is missing or stale. The returned func releases the lock.
func (h *Handler) begin(c *gin.Context) (*session.Session, func(), error) {
	id := sessionID(c)
	unlock := h.locks.lock(id)

	if id != "" {
		s, err := h.sessions.Load(c.Request.Context(), id)
		if err == nil {
			return s, unlock, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			unlock()
			return nil, nil, err
		}
	}

	s := session.New()
	h.setCookie(c, s.ID)
	return s, unlock, nil
}

func sessionID(c *gin.Context) string {
	id, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func (h *Handler) setCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, id, int(h.opts.CookieMaxAge.Seconds()), "/", "", h.opts.SecureCookie, true)
}

func (h *Handler) serverError(c *gin.Context, err error) {
	h.logger.Error("request failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
	_ = c.Error(err)
	c.String(http.StatusInternalServerError, fmt.Sprintf("session error: %s", err.Error()))
}

// sessionLocks serializes actions on one session. Entries are dropped once
// no request holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(id string) func() {
	if id == "" {
		return func() {}
	}

	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
