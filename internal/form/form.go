// Package form captures create and edit input for a user record.
//
// A Form never talks to the network. It hands its Draft to a caller-supplied
// callback, and Dispatch picks create or update from the editing identity.
package form

import (
	"context"
	"errors"
	"strings"

	"github.com/lllypuk/userdesk/internal/userapi"
)

// ErrNilCallback is returned when Submit is called without a callback.
var ErrNilCallback = errors.New("submit callback is required")

// Draft is unsaved form input. Password is only meaningful when creating.
type Draft struct {
	Username string `form:"username"`
	Email    string `form:"email"`
	Password string `form:"password"`
}

// Form holds a draft plus the identity of the record being edited, if any.
type Form struct {
	Draft     Draft
	EditingID *int64
}

// NewCreate returns an empty create form.
func NewCreate() *Form {
	return &Form{}
}

// NewEdit returns a form prefilled from user. The password is left blank and is never sent.
func NewEdit(user userapi.User) *Form {
	id := user.ID
	return &Form{
		Draft: Draft{
			Username: user.Username,
			Email:    user.Email,
		},
		EditingID: &id,
	}
}

// IsEditing reports whether the form edits an existing record.
func (f *Form) IsEditing() bool {
	return f.EditingID != nil
}

// Title returns the heading shown above the form.
func (f *Form) Title() string {
	if f.IsEditing() {
		return "Edit user"
	}
	return "New user"
}

// Action returns the path the form posts to.
func (f *Form) Action() string {
	if f.IsEditing() {
		return "/users/" + formatID(*f.EditingID)
	}
	return "/users"
}

// Submit hands the draft to onSubmit. Content is not validated here.
func (f *Form) Submit(onSubmit func(Draft) error) error {
	if onSubmit == nil {
		return ErrNilCallback
	}

	draft := f.Draft
	if f.IsEditing() {
		draft.Password = ""
	}

	return onSubmit(draft)
}

// Cancel reports dismissal to onCancel.
func (f *Form) Cancel(onCancel func()) {
	if onCancel != nil {
		onCancel()
	}
}

// Mutator performs the create and update calls chosen by Dispatch.
type Mutator interface {
	CreateUser(ctx context.Context, req userapi.CreateRequest) (*userapi.User, error)
	UpdateUser(ctx context.Context, id int64, req userapi.UpdateRequest) (*userapi.User, error)
}

// Dispatch submits f through m: update when an editing identity is present, create otherwise.
// Update never carries a password.
func Dispatch(ctx context.Context, m Mutator, f *Form) (*userapi.User, error) {
	var saved *userapi.User

	err := f.Submit(func(d Draft) error {
		var err error
		if f.IsEditing() {
			saved, err = m.UpdateUser(ctx, *f.EditingID, userapi.UpdateRequest{
				Username: d.Username,
				Email:    d.Email,
			})
			return err
		}

		saved, err = m.CreateUser(ctx, userapi.CreateRequest{
			Username: d.Username,
			Email:    d.Email,
			Password: d.Password,
		})
		return err
	})

	return saved, err
}

// Normalize trims surrounding whitespace from username and email.
// Passwords are kept as typed.
func (d Draft) Normalize() Draft {
	return Draft{
		Username: strings.TrimSpace(d.Username),
		Email:    strings.TrimSpace(d.Email),
		Password: d.Password,
	}
}
