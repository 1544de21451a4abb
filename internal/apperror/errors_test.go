package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("load client: %w", NotFound("client %s not found", "abc"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "load client: client abc not found", err.Error())
}

func TestUpstreamErrorCarriesResponse(t *testing.T) {
	err := fmt.Errorf("issue invoice: %w", &UpstreamError{Service: "smartbill", StatusCode: 400, Body: `{"errorText":"bad cif"}`})

	var upstream *UpstreamError
	assert.True(t, errors.As(err, &upstream))
	assert.Equal(t, 400, upstream.StatusCode)
	assert.Equal(t, `{"errorText":"bad cif"}`, upstream.Body)
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("empty"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"billing state", InvalidBillingState("nothing to bill"), http.StatusConflict},
		{"conflict", Conflict("duplicate"), http.StatusConflict},
		{"immutable", ImmutableRecord("validated"), http.StatusForbidden},
		{"upstream", &UpstreamError{Service: "smartbill", StatusCode: 500}, http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindValidation, cause, "bad upload")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "bad upload: disk full", err.Error())
}
