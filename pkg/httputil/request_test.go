package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "nmae": "x"}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest payload

			err := ParseJSON(req, &dest)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{`))
	w := httptest.NewRecorder()
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/authz/roles/admin", nil)
	req = mux.SetURLVars(req, map[string]string{"role": "admin"})

	val, err := ParsePathString(req, "role")
	require.NoError(t, err)
	assert.Equal(t, "admin", val)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, req, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryBool(t *testing.T) {
	tests := []struct {
		query       string
		defaultVal  bool
		want        bool
		expectError bool
	}{
		{"", true, true, false},
		{"?wait=false", true, false, false},
		{"?wait=1", false, true, false},
		{"?wait=soon", true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/authz/me"+tt.query, nil)
			got, err := ParseQueryBool(req, "wait", tt.defaultVal)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, "x", "actor_id"))

	w = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(w, "", "actor_id"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "actor_id is required")
}
