package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/oiclass/oiclass/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// bindPage reads `page` and `page_size`; bad values fall back to the defaults.
func bindPage(ctx echo.Context) core.Pagination {
	var page core.Pagination
	_ = new(echo.DefaultBinder).BindQueryParams(ctx, &page)
	page.Clean()
	return page
}

// bindQuery binds the query string into a filter struct using its `query` tags.
func bindQuery(ctx echo.Context, filter interface{}) error {
	if err := new(echo.DefaultBinder).BindQueryParams(ctx, filter); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

// bindBody binds the JSON body; malformed bodies are a 400.
func bindBody(ctx echo.Context, data interface{}) error {
	if err := new(echo.DefaultBinder).BindBody(ctx, data); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			return herr
		}
		return core.NewValidationError(err)
	}
	return nil
}

// nonNil makes empty results encode as `[]` instead of `null`.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
