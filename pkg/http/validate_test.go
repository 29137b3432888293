package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanBody struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=3"`
	MinGain float64  `json:"min_gain" default:"5" validate:"gte=0"`
	Range   string   `json:"range" validate:"omitempty,oneof=1mo 3mo 6mo"`
}

func bind(t *testing.T, body string, dst interface{}) []ValidationError {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(req, httptest.NewRecorder()), dst)
}

func TestReadAndValidateRequestFillsDefaults(t *testing.T) {
	var req scanBody
	require.Nil(t, bind(t, `{"symbols":["AAPL"]}`, &req))
	assert.Equal(t, 5.0, req.MinGain)
}

func TestReadAndValidateRequestUsesJSONFieldNames(t *testing.T) {
	var req scanBody
	errs := bind(t, `{"symbols":["A","B","C","D"],"range":"5y"}`, &req)
	require.Len(t, errs, 2)

	assert.Equal(t, "ERR_MAX", errs[0].Code)
	assert.Equal(t, "symbols", errs[0].Field)
	assert.Equal(t, "symbols must hold at most 3 symbols", errs[0].Message)

	assert.Equal(t, "ERR_ONEOF", errs[1].Code)
	assert.Equal(t, "range must be one of: 1mo, 3mo, 6mo", errs[1].Message)
	assert.Equal(t, []string{"1mo", "3mo", "6mo"}, errs[1].Params["options"])
}

func TestReadAndValidateRequestRejectsMalformedBody(t *testing.T) {
	var req scanBody
	errs := bind(t, `{"symbols":`, &req)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BAD_BODY", errs[0].Code)
}
