package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/alert"
)

// searchQuery is the decoded form of /v1/alerts/search. Repeated lat/lon
// parameters form the point list, pairwise.
type searchQuery struct {
	Lat []float64 `schema:"lat"`
	Lon []float64 `schema:"lon"`
}

// apiHandler serves the alert query endpoints. Large results never travel
// inline: point searches and exports return a time-bounded retrieval URL
// instead of the payload.
type apiHandler struct {
	logger  logrus.FieldLogger
	queries *alert.QueryEngine
	decoder *schema.Decoder
}

func newAPIHandler(logger logrus.FieldLogger, queries *alert.QueryEngine) *apiHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &apiHandler{logger: logger, queries: queries, decoder: decoder}
}

func (h *apiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/v1/alerts":
		h.list(w, r)
	case "/v1/alerts/search":
		h.search(w, r)
	case "/v1/alerts/export":
		h.export(w, r)
	default:
		http.NotFound(w, r)
	}
}

// list returns the metadata tier records, geometries omitted.
func (h *apiHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.GetAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, records)
}

// search runs a point containment query and returns the export handle.
func (h *apiHandler) search(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		http.Error(w, "malformed query parameters", http.StatusBadRequest)
		return
	}
	if len(q.Lat) == 0 || len(q.Lat) != len(q.Lon) {
		http.Error(w, "lat and lon must be present in equal numbers", http.StatusBadRequest)
		return
	}
	points := make([]alert.Point, len(q.Lat))
	for i := range q.Lat {
		points[i] = alert.Point{Lat: q.Lat[i], Lon: q.Lon[i]}
	}

	url, err := h.queries.QueryByPoints(r.Context(), points)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, map[string]string{"url": url})
}

// export bundles every alert, geometries included, and returns the handle.
func (h *apiHandler) export(w http.ResponseWriter, r *http.Request) {
	url, err := h.queries.ExportAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, map[string]string{"url": url})
}

func (h *apiHandler) respond(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Response could not be written: ", err)
	}
}

func (h *apiHandler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("Request failed: ", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
