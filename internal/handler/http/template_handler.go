package httphandler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/lllypuk/userdesk/internal/session"
)

// ErrNoSession is returned when a console route runs without the session middleware.
var ErrNoSession = errors.New("no browser session on request")

// TemplateRenderer implements echo.Renderer for HTML template rendering.
type TemplateRenderer struct {
	templates *template.Template
	mu        sync.RWMutex
	logger    *slog.Logger
	devMode   bool
	fs        fs.FS
}

// TemplateRendererConfig holds configuration for the template renderer.
type TemplateRendererConfig struct {
	// FS holds the templates under a "templates" directory.
	FS fs.FS
	// Logger is the structured logger.
	Logger *slog.Logger
	// DevMode enables template reloading on each request.
	DevMode bool
}

// NewTemplateRenderer creates a new template renderer.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		logger:  cfg.Logger,
		devMode: cfg.DevMode,
		fs:      cfg.FS,
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

// loadTemplates parses all templates from the filesystem.
func (r *TemplateRenderer) loadTemplates() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmpl := template.New("").Funcs(TemplateFuncs())

	err := fs.WalkDir(r.fs, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}

		content, readErr := fs.ReadFile(r.fs, path)
		if readErr != nil {
			return readErr
		}

		// Templates are named by their path relative to templates/.
		name := path[len("templates/"):]
		if _, parseErr := tmpl.New(name).Parse(string(content)); parseErr != nil {
			r.logger.Error("failed to parse template",
				slog.String("path", path),
				slog.String("error", parseErr.Error()))
			return parseErr
		}

		r.logger.Debug("loaded template", slog.String("name", name))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	r.templates = tmpl
	return nil
}

// Render implements echo.Renderer.
func (r *TemplateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	if r.devMode {
		if err := r.loadTemplates(); err != nil {
			r.logger.Error("failed to reload templates", slog.String("error", err.Error()))
			return fmt.Errorf("failed to reload templates: %w", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(w, name, data)
}

// Flash represents flash message data for templates.
type Flash struct {
	Success []string
	Error   []string
	Info    []string
}

// Empty reports whether there is nothing to show.
func (f *Flash) Empty() bool {
	return f == nil || len(f.Success)+len(f.Error)+len(f.Info) == 0
}

// PageData represents common data passed to all page templates.
type PageData struct {
	Title    string
	AppName  string
	Active   string
	Operator *OperatorView
	Flash    *Flash
	Data     any
}

// OperatorView represents the signed-in operator for templates.
type OperatorView struct {
	Name  string
	Email string
}

// Nav sections.
const (
	NavUsers = "users"
	NavAbout = "about"
)

// pages renders full pages and partials with the shared layout data.
type pages struct {
	renderer *TemplateRenderer
	appName  string
	logger   *slog.Logger
}

// page renders a full page with status.
func (p *pages) page(c echo.Context, status int, name, title, active string, flash *Flash, data any) error {
	if flash == nil {
		flash = &Flash{}
	}
	if s := middleware.GetSession(c); s != nil {
		mergeFlashes(flash, s.TakeFlashes())
	}

	return p.write(c, status, name, PageData{
		Title:    title,
		AppName:  p.appName,
		Active:   active,
		Operator: operatorView(c),
		Flash:    flash,
		Data:     data,
	})
}

// partial renders a template without the base layout, for htmx swaps.
func (p *pages) partial(c echo.Context, name string, data any) error {
	return p.write(c, http.StatusOK, name, data)
}

// write renders into a buffer first so a template error never leaves half a page behind.
func (p *pages) write(c echo.Context, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, name, data, c); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return c.HTMLBlob(status, buf.Bytes())
}

func mergeFlashes(flash *Flash, queued []session.Flash) {
	for _, f := range queued {
		switch f.Kind {
		case session.FlashSuccess:
			flash.Success = append(flash.Success, f.Message)
		case session.FlashError:
			flash.Error = append(flash.Error, f.Message)
		default:
			flash.Info = append(flash.Info, f.Message)
		}
	}
}

func operatorView(c echo.Context) *OperatorView {
	op, ok := middleware.GetOperator(c)
	if !ok {
		return nil
	}
	return &OperatorView{Name: op.Name, Email: op.Email}
}

// PagesConfig holds what every page handler shares.
type PagesConfig struct {
	Renderer *TemplateRenderer
	// AppName is shown in the header and page titles.
	AppName string
	Logger  *slog.Logger
}

func newPages(cfg PagesConfig) pages {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return pages{renderer: cfg.Renderer, appName: cfg.AppName, logger: cfg.Logger}
}

// TemplateHandler serves the navigation shell: about page, fallbacks and error pages.
type TemplateHandler struct {
	pages

	backendURL string
}

// NewTemplateHandler creates a new template handler. backendURL is shown on the about page.
func NewTemplateHandler(cfg PagesConfig, backendURL string) *TemplateHandler {
	return &TemplateHandler{
		pages:      newPages(cfg),
		backendURL: backendURL,
	}
}

// AboutPageData is the view-model of the about page.
type AboutPageData struct {
	BackendURL string
}

// About renders the about page with the current operator, when known.
func (h *TemplateHandler) About(c echo.Context) error {
	return h.page(c, http.StatusOK, "about.html", "About", NavAbout, nil, AboutPageData{
		BackendURL: h.backendURL,
	})
}

// Fallback sends unknown paths to the users page.
func (h *TemplateHandler) Fallback(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/users")
}

// ErrorPageData is the view-model of the error page.
type ErrorPageData struct {
	Status  int
	Message string
}

// ErrorPage renders the error page. It is used by the server's error handler.
func (h *TemplateHandler) ErrorPage(c echo.Context, status int, message string) error {
	if c.Request().Header.Get(middleware.HeaderHXRequest) != "" {
		return c.String(status, message)
	}
	return h.page(c, status, "error.html", http.StatusText(status), "", nil, ErrorPageData{
		Status:  status,
		Message: message,
	})
}

// SetupStaticRoutes registers routes for serving static files.
func SetupStaticRoutes(e *echo.Echo, staticFS fs.FS) error {
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}

	e.StaticFS("/static", staticSub)

	return nil
}

// RegisterRoutes registers the shell pages.
func (h *TemplateHandler) RegisterRoutes(r *httpserver.Router) {
	r.Console().GET("/about", h.About)
	r.Echo().RouteNotFound("/*", h.Fallback)
}
