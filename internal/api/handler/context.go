package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ActorKey is the echo context key under which the Auth middleware stores the
// authenticated caller identity.
const ActorKey = "actor"

// ctxActor extracts the caller identity injected by the Auth middleware and
// fails fast before any service call when it is missing.
func ctxActor(c echo.Context) (string, error) {
	actor, _ := c.Get(ActorKey).(string)
	if actor == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return actor, nil
}

// productID parses the :id path parameter. Zero is accepted here and reported
// as not found by the service.
func productID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	return id, nil
}

func linksFor(id uint64) productLinks {
	base := "/v1/products/" + strconv.FormatUint(id, 10)
	return productLinks{
		Self:    base,
		History: base + "/history",
	}
}
