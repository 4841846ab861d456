// Package view builds the template view-models for the users screen.
// It is stateless: every value is derived from a listview.Snapshot.
package view

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lllypuk/userdesk/internal/listview"
	"github.com/lllypuk/userdesk/internal/userapi"
)

// Row is one rendered user.
type Row struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt *time.Time
	EditURL   string
	DeleteURL string
}

// Pager describes the pagination controls.
type Pager struct {
	Page         int
	Size         int
	Total        int
	TotalPages   int
	Label        string
	PrevDisabled bool
	NextDisabled bool
	PrevURL      string
	NextURL      string
	SizeOptions  []int
}

// ScreenParam carries the screen id in links, forms and htmx requests.
const ScreenParam = "screen"

// Table is the view-model of the users table.
type Table struct {
	Rows    []Row
	Query   string
	Loading bool
	Error   string
	// Empty is true when the empty-state row should be shown.
	Empty bool
	Pager Pager
	// Screen identifies the list controller behind this table.
	Screen     string
	RefreshURL string
}

// NewTable builds the table of screen from a controller snapshot.
func NewTable(s listview.Snapshot, screen string) Table {
	back := listParams(s.Page, s.Size, s.Query, screen).Encode()

	rows := make([]Row, 0, len(s.Records))
	for _, u := range s.Records {
		rows = append(rows, newRow(u, back))
	}

	totalPages := s.TotalPages()

	refresh := "/partials/users"
	if screen != "" {
		refresh += "?" + url.Values{ScreenParam: {screen}}.Encode()
	}

	return Table{
		Rows:       rows,
		Query:      s.Query,
		Loading:    s.Loading,
		Error:      s.Err,
		Empty:      len(rows) == 0 && !s.Loading && s.Err == "",
		Screen:     screen,
		RefreshURL: refresh,
		Pager: Pager{
			Page:         s.Page,
			Size:         s.Size,
			Total:        s.Total,
			TotalPages:   totalPages,
			Label:        s.PageLabel(),
			PrevDisabled: !s.HasPrev(),
			NextDisabled: !s.HasNext(),
			PrevURL:      ListURL(max(s.Page-1, 0), s.Size, s.Query, screen),
			NextURL:      ListURL(s.Page+1, s.Size, s.Query, screen),
			SizeOptions:  listview.SizeOptions,
		},
	}
}

// newRow links edit and delete with the list intent the row was shown under,
// so the record can be found again after the screen moved on.
func newRow(u userapi.User, back string) Row {
	id := strconv.FormatInt(u.ID, 10)
	return Row{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		EditURL:   "/users/" + id + "/edit?" + back,
		DeleteURL: "/users/" + id + "/delete?" + back,
	}
}

// ListURL returns the users page URL for the given intent.
func ListURL(page, size int, query, screen string) string {
	return "/users?" + listParams(page, size, query, screen).Encode()
}

func listParams(page, size int, query, screen string) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}
	if screen != "" {
		params.Set(ScreenParam, screen)
	}
	return params
}

// Confirmation is the explicit prompt shown before a delete.
type Confirmation struct {
	ID        int64
	Username  string
	Message   string
	ActionURL string
	CancelURL string
	Screen    string
}

// ConfirmAnswer is the form value that confirms a delete. Anything else declines.
const ConfirmAnswer = "yes"

// NewDeleteConfirmation builds the prompt for deleting u from screen.
func NewDeleteConfirmation(u userapi.User, back, screen string) Confirmation {
	name := u.Username
	if name == "" {
		name = "#" + strconv.FormatInt(u.ID, 10)
	}
	if back == "" {
		back = "/users"
	}
	return Confirmation{
		ID:        u.ID,
		Username:  u.Username,
		Message:   fmt.Sprintf("Delete user %s?", name),
		ActionURL: "/users/" + strconv.FormatInt(u.ID, 10) + "/delete",
		CancelURL: back,
		Screen:    screen,
	}
}

// Confirmed reports whether answer confirms the delete.
func Confirmed(answer string) bool {
	return answer == ConfirmAnswer
}
