package form

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator.Validate is safe for concurrent use and caches struct info.
var validate = validator.New(validator.WithRequiredStructEnabled())

// createRules and editRules mirror what a browser's native inputs would flag.
type createRules struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type editRules struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
}

// Hints maps a field name to an advisory message.
type Hints map[string]string

// Has reports whether field has a hint.
func (h Hints) Has(field string) bool {
	_, ok := h[field]
	return ok
}

// Hints returns advisory messages for the current draft.
// Hints never block submission.
func (f *Form) Hints() Hints {
	d := f.Draft.Normalize()

	var err error
	if f.IsEditing() {
		err = validate.Struct(editRules{Username: d.Username, Email: d.Email})
	} else {
		err = validate.Struct(createRules(d))
	}

	hints := Hints{}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return hints
	}

	for _, fe := range verrs {
		hints[fieldName(fe.Field())] = hintText(fe)
	}

	return hints
}

func fieldName(structField string) string {
	switch structField {
	case "Username":
		return "username"
	case "Email":
		return "email"
	case "Password":
		return "password"
	default:
		return structField
	}
}

func hintText(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fieldName(fe.Field()) + " is empty"
	case "email":
		return "this does not look like an email address"
	default:
		return fieldName(fe.Field()) + " looks invalid"
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
