package httphandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/form"
	"github.com/lllypuk/userdesk/internal/infrastructure/eventbus"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/lllypuk/userdesk/internal/listview"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/lllypuk/userdesk/internal/session"
	"github.com/lllypuk/userdesk/internal/userapi"
	"github.com/lllypuk/userdesk/internal/view"
)

// Template names used by the users screen.
const (
	usersListTemplate    = "users/list.html"
	usersFormTemplate    = "users/form.html"
	usersConfirmTemplate = "users/confirm_delete.html"
	usersTablePartial    = "users-table"
)

// HeaderHXReplaceURL tells htmx which URL to show after a swap.
const HeaderHXReplaceURL = "HX-Replace-Url"

// UserMutator performs the backend calls behind create, update and delete.
// Declared on the consumer side; *userapi.Client satisfies it.
type UserMutator interface {
	form.Mutator
	DeleteUser(ctx context.Context, id int64) error
}

// EventPublisher announces successful mutations to other tabs and replicas.
type EventPublisher interface {
	Publish(ctx context.Context, evt eventbus.Event) error
}

// PublishCounter is notified for every published change event.
type PublishCounter interface {
	EventPublished()
}

// UsersPageData is the view-model of the users page.
type UsersPageData struct {
	Table view.Table
}

// FormPageData is the view-model of the create and edit pages.
type FormPageData struct {
	Form      *form.Form
	Hints     form.Hints
	CancelURL string
	Screen    string
}

// ConfirmPageData is the view-model of the delete confirmation page.
type ConfirmPageData struct {
	Confirmation view.Confirmation
}

// UsersTemplateHandler serves the users screen.
type UsersTemplateHandler struct {
	pages

	users     UserMutator
	publisher EventPublisher
	counter   PublishCounter
}

// UsersOption configures a UsersTemplateHandler.
type UsersOption func(*UsersTemplateHandler)

// WithPublisher publishes a change event after every successful mutation.
func WithPublisher(publisher EventPublisher) UsersOption {
	return func(h *UsersTemplateHandler) {
		h.publisher = publisher
	}
}

// WithPublishCounter counts published change events.
func WithPublishCounter(counter PublishCounter) UsersOption {
	return func(h *UsersTemplateHandler) {
		h.counter = counter
	}
}

// NewUsersTemplateHandler creates a new users handler.
func NewUsersTemplateHandler(cfg PagesConfig, users UserMutator, opts ...UsersOption) *UsersTemplateHandler {
	h := &UsersTemplateHandler{
		pages: newPages(cfg),
		users: users,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// RegisterRoutes registers the users screen.
func (h *UsersTemplateHandler) RegisterRoutes(r *httpserver.Router) {
	r.Console().GET("/", h.UsersPage)
	r.Console().GET("/users", h.UsersPage)
	r.Console().GET("/users/new", h.NewForm)
	r.Console().GET("/users/:id/edit", h.EditForm)
	r.Console().GET("/users/:id/delete", h.ConfirmDelete)

	r.Partials().GET("/users", h.UsersPartial)

	r.Mutations().POST("/users", h.Create)
	r.Mutations().POST("/users/:id", h.Update)
	r.Mutations().POST("/users/:id/delete", h.Delete)
}

// screen is the list controller a request acts on.
type screen struct {
	session *session.Session
	id      string
	ctrl    *listview.Controller
}

func (sc screen) listURL() string {
	snap := sc.ctrl.Snapshot()
	return view.ListURL(snap.Page, snap.Size, snap.Query, sc.id)
}

// currentScreen resolves the screen named by the screen parameter of the query
// string or posted form.
func currentScreen(c echo.Context) (screen, error) {
	s, err := currentSession(c)
	if err != nil {
		return screen{}, err
	}
	id, ctrl := s.Screen(c.FormValue(view.ScreenParam))
	return screen{session: s, id: id, ctrl: ctrl}, nil
}

// UsersPage renders the users page. page, size and q query parameters are list intents;
// without them the current list is refetched as is. A request without a screen id
// opens a new screen, as a new tab does.
func (h *UsersTemplateHandler) UsersPage(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return err
	}

	sc := screen{session: s}
	if id := c.QueryParam(view.ScreenParam); id != "" {
		sc.id, sc.ctrl = s.Screen(id)
	} else {
		sc.id, sc.ctrl = s.NewScreen()
	}

	snap, err := h.applyIntents(c, sc.ctrl, sc.ctrl.Load)
	if err != nil {
		return err
	}

	return h.renderList(c, sc, snap, nil)
}

// UsersPartial renders only the table. Without intents it is a plain refresh,
// which is what a websocket change notice triggers.
func (h *UsersTemplateHandler) UsersPartial(c echo.Context) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}

	snap, err := h.applyIntents(c, sc.ctrl, sc.ctrl.Refresh)
	if err != nil {
		return err
	}

	c.Response().Header().Set(HeaderHXReplaceURL, view.ListURL(snap.Page, snap.Size, snap.Query, sc.id))
	return h.partial(c, usersTablePartial, view.NewTable(snap, sc.id))
}

// NewForm renders an empty create form.
func (h *UsersTemplateHandler) NewForm(c echo.Context) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}
	return h.renderForm(c, sc, http.StatusOK, form.NewCreate(), "")
}

// EditForm renders the edit form prefilled from the record on screen.
func (h *UsersTemplateHandler) EditForm(c echo.Context) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}

	id, err := userID(c)
	if err != nil {
		return err
	}

	user, ok, err := h.lookup(c, sc, id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.ErrNotFound
	}

	return h.renderForm(c, sc, http.StatusOK, form.NewEdit(user), "")
}

// lookup finds record id for a row link. The screen's current records come first.
// When the screen has moved to another page since the link was rendered, the
// page named by the link is fetched again; failing that, any other screen of the
// session that still shows the record is used.
func (h *UsersTemplateHandler) lookup(c echo.Context, sc screen, id int64) (userapi.User, bool, error) {
	if u, ok := sc.ctrl.Snapshot().Find(id); ok {
		return u, true, nil
	}

	if hasIntents(c) {
		snap, err := h.applyIntents(c, sc.ctrl, sc.ctrl.Load)
		if err != nil {
			return userapi.User{}, false, err
		}
		if u, ok := snap.Find(id); ok {
			return u, true, nil
		}
	}

	u, ok := sc.session.Find(id)
	return u, ok, nil
}

// Create submits the create form.
func (h *UsersTemplateHandler) Create(c echo.Context) error {
	return h.submit(c, form.NewCreate())
}

// Update submits the edit form for the record in the path.
func (h *UsersTemplateHandler) Update(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	return h.submit(c, form.NewEdit(userapi.User{ID: id}))
}

// submit binds the posted draft into f and dispatches it. On failure the form is
// shown again with the backend's message; on success the list is refetched.
func (h *UsersTemplateHandler) submit(c echo.Context, f *form.Form) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}

	if bindErr := c.Bind(&f.Draft); bindErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, bindErr.Error())
	}
	f.Draft = f.Draft.Normalize()

	ctx := c.Request().Context()

	saved, err := form.Dispatch(ctx, h.users, f)
	if err != nil {
		h.logger.WarnContext(ctx, "user mutation failed",
			slog.Bool("editing", f.IsEditing()),
			slog.String("error", err.Error()),
		)
		return h.renderForm(c, sc, http.StatusUnprocessableEntity, f, err.Error())
	}

	var snap listview.Snapshot
	if f.IsEditing() {
		h.publish(ctx, eventbus.ActionUpdated, saved.ID)
		snap = sc.ctrl.AfterMutation(ctx)
		sc.session.AddFlash(session.FlashSuccess, fmt.Sprintf("User %s updated", saved.Username))
	} else {
		h.publish(ctx, eventbus.ActionCreated, saved.ID)
		snap = sc.ctrl.AfterCreate(ctx)
		sc.session.AddFlash(session.FlashSuccess, fmt.Sprintf("User %s created", saved.Username))
	}

	return h.renderList(c, sc, snap, nil)
}

// ConfirmDelete renders the explicit confirmation step. Nothing is deleted here.
func (h *UsersTemplateHandler) ConfirmDelete(c echo.Context) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}

	id, err := userID(c)
	if err != nil {
		return err
	}

	user, ok, err := h.lookup(c, sc, id)
	if err != nil {
		return err
	}
	if !ok {
		user = userapi.User{ID: id}
	}

	return h.renderConfirm(c, http.StatusOK, view.NewDeleteConfirmation(user, sc.listURL(), sc.id), "")
}

// Delete deletes the record only when the confirmation answer is yes.
// Any other answer goes back to the list without a network call.
func (h *UsersTemplateHandler) Delete(c echo.Context) error {
	sc, err := currentScreen(c)
	if err != nil {
		return err
	}

	id, err := userID(c)
	if err != nil {
		return err
	}

	if !view.Confirmed(c.FormValue("confirm")) {
		return h.renderList(c, sc, sc.ctrl.Snapshot(), nil)
	}

	ctx := c.Request().Context()

	if deleteErr := h.users.DeleteUser(ctx, id); deleteErr != nil {
		h.logger.WarnContext(ctx, "delete user failed",
			slog.Int64("user_id", id),
			slog.String("error", deleteErr.Error()),
		)
		user, ok := sc.session.Find(id)
		if !ok {
			user = userapi.User{ID: id}
		}
		confirmation := view.NewDeleteConfirmation(user, sc.listURL(), sc.id)
		return h.renderConfirm(c, http.StatusUnprocessableEntity, confirmation, deleteErr.Error())
	}

	h.publish(ctx, eventbus.ActionDeleted, id)
	snap := sc.ctrl.AfterMutation(ctx)
	sc.session.AddFlash(session.FlashSuccess, "User deleted")

	return h.renderList(c, sc, snap, nil)
}

func hasIntents(c echo.Context) bool {
	params := c.QueryParams()
	return params.Has("page") || params.Has("size") || params.Has("q")
}

// applyIntents applies page, size and q from the query string in one fetch.
// When none is present it calls fallback instead.
func (h *UsersTemplateHandler) applyIntents(
	c echo.Context,
	ctrl *listview.Controller,
	fallback func(context.Context) listview.Snapshot,
) (listview.Snapshot, error) {
	ctx := c.Request().Context()

	if !hasIntents(c) {
		return fallback(ctx), nil
	}

	params := c.QueryParams()
	current := ctrl.Snapshot()

	page, err := intParam(params.Get("page"), current.Page)
	if err != nil {
		return current, echo.NewHTTPError(http.StatusBadRequest, "page must be a number")
	}
	size, err := intParam(params.Get("size"), current.Size)
	if err != nil {
		return current, echo.NewHTTPError(http.StatusBadRequest, "size must be a number")
	}

	snap, err := ctrl.Apply(ctx, page, size, params.Get("q"))
	if err != nil {
		return current, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return snap, nil
}

func (h *UsersTemplateHandler) renderList(c echo.Context, sc screen, snap listview.Snapshot, flash *Flash) error {
	c.Response().Header().Set(HeaderHXReplaceURL, view.ListURL(snap.Page, snap.Size, snap.Query, sc.id))
	return h.page(c, http.StatusOK, usersListTemplate, "Users", NavUsers, flash, UsersPageData{
		Table: view.NewTable(snap, sc.id),
	})
}

func (h *UsersTemplateHandler) renderForm(c echo.Context, sc screen, status int, f *form.Form, errMsg string) error {
	return h.page(c, status, usersFormTemplate, f.Title(), NavUsers, errorFlash(errMsg), FormPageData{
		Form:      f,
		Hints:     f.Hints(),
		CancelURL: sc.listURL(),
		Screen:    sc.id,
	})
}

func (h *UsersTemplateHandler) renderConfirm(c echo.Context, status int, confirmation view.Confirmation, errMsg string) error {
	return h.page(c, status, usersConfirmTemplate, "Delete user", NavUsers, errorFlash(errMsg), ConfirmPageData{
		Confirmation: confirmation,
	})
}

func (h *UsersTemplateHandler) publish(ctx context.Context, action string, id int64) {
	if h.publisher == nil {
		return
	}

	evt := eventbus.NewUsersChanged(action, id)
	if err := h.publisher.Publish(ctx, evt); err != nil {
		// The mutation already happened; other tabs just miss the push.
		h.logger.WarnContext(ctx, "failed to publish change event",
			slog.String("action", action),
			slog.Int64("user_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	if h.counter != nil {
		h.counter.EventPublished()
	}
}

func currentSession(c echo.Context) (*session.Session, error) {
	s := middleware.GetSession(c)
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

func userID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.ErrNotFound
	}
	return id, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func errorFlash(msg string) *Flash {
	if msg == "" {
		return nil
	}
	return &Flash{Error: []string{msg}}
}
