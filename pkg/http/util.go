package http

import (
	"time"

	xutil "StockIt/pkg/util"

	"github.com/labstack/echo/v4"
)

func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}

func QueryFloat(c echo.Context, name string, def float64) float64 {
	return xutil.ParseFloatDefault(c.QueryParam(name), def)
}

func QueryTime(c echo.Context, name string, def time.Time) time.Time {
	return xutil.ParseTimeDefault(c.QueryParam(name), def)
}

// QuerySymbols reads a comma separated ticker list such as ?symbols=AAPL,MSFT.
func QuerySymbols(c echo.Context, name string) []string {
	return xutil.SplitSymbols(c.QueryParam(name))
}
