package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cvhub/apiserver/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"case insensitive scheme", "bearer abc", "abc", true},
		{"missing header", "", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"no token", "Bearer ", "", false},
		{"scheme only", "Bearer", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			token, err := bearerToken(r)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.token, token)
			} else {
				assert.ErrorIs(t, err, services.ErrMissingToken)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	get := func(query string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	}

	page, limit, offset, err := parsePagination(get(""))
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	page, limit, offset, err = parsePagination(get("page=3&limit=15"))
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 15, limit)
	assert.Equal(t, 30, offset)

	_, limit, _, err = parsePagination(get("limit=500"))
	require.NoError(t, err)
	assert.Equal(t, maxLimit, limit)

	for _, query := range []string{"page=0", "page=abc", "limit=0", "limit=-5"} {
		_, _, _, err := parsePagination(get(query))
		assert.Error(t, err, query)
	}
}

func TestParseKeywords(t *testing.T) {
	assert.Nil(t, parseKeywords(""))
	assert.Nil(t, parseKeywords("  "))
	assert.Equal(t, []string{"go"}, parseKeywords("go"))
	assert.Equal(t, []string{"go", "postgres"}, parseKeywords(" go , postgres ,, "))
}
