package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitRequest struct {
	Description string `json:"description" validate:"required,notblank,max=20"`
	Score       *int   `json:"score" validate:"required,min=0,max=10"`
}

func intPtr(v int) *int { return &v }

func TestValidate_Success(t *testing.T) {
	err := Validate(submitRequest{Description: "late materials", Score: intPtr(2)})
	assert.NoError(t, err)
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(submitRequest{Score: intPtr(3)})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["description"])
	assert.NotContains(t, fields, "Description")
}

func TestValidate_BlankDescription(t *testing.T) {
	err := Validate(submitRequest{Description: "   ", Score: intPtr(3)})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["description"])
}

func TestValidate_MissingScore(t *testing.T) {
	err := Validate(submitRequest{Description: "ok"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["score"])
}

func TestValidate_NumericAndLengthMessages(t *testing.T) {
	err := Validate(submitRequest{Description: strings.Repeat("x", 21), Score: intPtr(11)})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be at most 10", fields["score"])
	assert.Equal(t, "must be at most 20 characters", fields["description"])
	assert.Contains(t, valErr.Error(), "field 'score'")
}

func TestValidate_ScoreBelowRange(t *testing.T) {
	err := Validate(submitRequest{Description: "x", Score: intPtr(-1)})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at least 0", valErr.Fields()["score"])
}

func TestDecodeAndValidate(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":"great course","score":9}`))
	var dst submitRequest
	require.NoError(t, DecodeAndValidate(r, &dst))
	assert.Equal(t, 9, *dst.Score)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
