package server

import (
	"net/http"
	"strconv"

	"multitrack/logger"
	"multitrack/storage"

	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleContent serves stored blobs by content id. Content never changes
// under an id so responses are cacheable forever.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	if !storage.ValidContentID(cid) {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return
	}

	blob, err := s.deps.Blobs.Fetch(r.Context(), cid)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "content not found")
			return
		}
		logger.Error("[Server] 读取内容失败", logger.String("cid", cid), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "blob store unavailable")
		return
	}

	contentType := blob.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+cid+`"`)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(blob.Data); err != nil {
		logger.Warn("[Server] 写入响应失败", logger.String("cid", cid), logger.ErrorField(err))
	}
}
