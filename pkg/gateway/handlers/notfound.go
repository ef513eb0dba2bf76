package handlers

import (
	"net/http"

	"github.com/veerhq/voicekit/pkg/gateway/apierror"
	"github.com/veerhq/voicekit/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeErrorJSON(w, http.StatusNotFound, apierror.NotFound(reqID))
}
