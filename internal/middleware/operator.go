package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Headers a fronting proxy sets to identify the signed-in operator.
const (
	HeaderOperatorName  = "X-Operator-Name"
	HeaderOperatorEmail = "X-Operator-Email"
)

// OperatorKey is the context key for the current operator.
const OperatorKey = "operator"

// Operator is the person using the console, as reported by the proxy.
type Operator struct {
	Name  string
	Email string
}

// Operators copies the operator headers into the request context.
// Requests without them carry no operator.
func Operators() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			op := Operator{
				Name:  strings.TrimSpace(h.Get(HeaderOperatorName)),
				Email: strings.TrimSpace(h.Get(HeaderOperatorEmail)),
			}
			if op.Name != "" || op.Email != "" {
				c.Set(OperatorKey, op)
			}
			return next(c)
		}
	}
}

// GetOperator returns the current operator, if the proxy named one.
func GetOperator(c echo.Context) (Operator, bool) {
	op, ok := c.Get(OperatorKey).(Operator)
	return op, ok
}
