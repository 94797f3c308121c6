package handlers

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/profiles"
)

func newProfileRouter(t *testing.T) *mux.Router {
	t.Helper()
	catalog, err := profiles.NewManager(profiles.Profile{Name: "lab", Services: map[string]string{"tcp": "5432"}})
	require.NoError(t, err)

	h := NewProfileHandler(catalog, logging.NewDiscard())
	router := mux.NewRouter()
	router.HandleFunc("/profiles", h.ListProfiles).Methods(http.MethodGet)
	router.HandleFunc("/profiles/{name}", h.GetProfile).Methods(http.MethodGet)
	return router
}

func TestListProfiles(t *testing.T) {
	router := newProfileRouter(t)

	w := doRequest(t, router, http.MethodGet, "/profiles?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, data, 2)

	pagination := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 7, pagination["total_items"])

	w = doRequest(t, router, http.MethodGet, "/profiles?page_size=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProfile(t *testing.T) {
	router := newProfileRouter(t)

	w := doRequest(t, router, http.MethodGet, "/profiles/lab", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "lab", body["name"])
	assert.Equal(t, false, body["built_in"])
	assert.Equal(t, map[string]interface{}{"tcp": "5432"}, body["services"])

	w = doRequest(t, router, http.MethodGet, "/profiles/web", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["built_in"])

	w = doRequest(t, router, http.MethodGet, "/profiles/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])
}
