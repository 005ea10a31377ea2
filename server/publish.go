package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"multitrack/core/ledger"
	"multitrack/core/metadata"
	"multitrack/core/workflow"
	"multitrack/logger"
	"multitrack/model"

	"github.com/gorilla/mux"
)

type publishResponse struct {
	Stage  string           `json:"stage"`
	Result *workflow.Result `json:"result"`
}

// handlePublish runs the publish workflow for the caller. Multipart fields:
// name, description, file and, for remixes, parentId.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	owner := claimsFrom(r.Context()).Owner

	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	draft := &workflow.Draft{
		Title:       strings.TrimSpace(r.FormValue("name")),
		Description: r.FormValue("description"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid file: "+err.Error())
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read file: "+err.Error())
			return
		}
		draft.Audio = workflow.AudioFromBytes(header.Filename, mimeOf(header.Header.Get("Content-Type"), header.Filename), data)
	}

	if parentID := r.FormValue("parentId"); parentID != "" {
		parent, status, err := s.findPublication(r, parentID)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		draft.Parent = parent
	}

	if !s.deps.Hub.Begin(owner) {
		writeWorkflowError(w, workflow.ErrBusy)
		return
	}
	defer s.deps.Hub.End(owner)

	wf := workflow.New(owner, draft, workflow.Deps{
		Store:    s.deps.Blobs,
		Mixer:    s.deps.Mixer,
		Ledger:   s.deps.Ledger,
		Scheme:   s.deps.Resolver.Scheme,
		Modules:  s.deps.Modules,
		Progress: s.deps.Hub.Reporter(owner),
	})
	res, err := wf.Run(r.Context())
	s.deps.Hub.Finish(owner, res, err)
	if err != nil {
		logger.Warn("[Server] 发布失败", logger.String("owner", owner), logger.ErrorField(err))
		writeWorkflowError(w, err)
		return
	}
	if s.deps.Cache != nil {
		s.deps.Cache.Invalidate(r.Context(), owner)
	}
	writeJSON(w, http.StatusAccepted, publishResponse{Stage: wf.Stage().String(), Result: res})
}

// mimeOf prefers the part's declared audio type, aliases mapped to their
// canonical spelling, and falls back to the file extension.
func mimeOf(declared, filename string) string {
	if t := metadata.NormalizeAudio(declared); metadata.SupportedAudio(t) {
		return t
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return metadata.AudioWAV
	case ".mp3":
		return metadata.AudioMPEG
	case ".ogg":
		return metadata.AudioOGG
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return metadata.NormalizeAudio(t)
	}
	return declared
}

// findPublication looks id up in its owner's index listing.
func (s *Server) findPublication(r *http.Request, id string) (*model.PublicationRecord, int, error) {
	owner, _, err := model.ParseID(id)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	records, err := s.deps.Index.Publications(r.Context(), owner)
	if err != nil {
		return nil, http.StatusBadGateway, fmt.Errorf("index unavailable: %w", err)
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], 0, nil
		}
	}
	return nil, http.StatusNotFound, fmt.Errorf("publication %s not found", id)
}

// handleCollect collects a publication for the caller.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	id := mux.Vars(r)["id"]
	profileID, pubID, err := model.ParseID(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pending, err := s.deps.Ledger.Collect(r.Context(), ledger.CollectRequest{
		CollectorID: claims.Owner,
		ProfileID:   profileID,
		PubID:       pubID,
	})
	if err != nil {
		logger.Warn("[Server] 收藏失败", logger.String("publication", id), logger.ErrorField(err))
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			status = http.StatusFailedDependency
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, pending)
}

// handleFollow makes the caller follow {owner}. Only available when the
// ledger keeps follow edges itself.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	if s.deps.Follower == nil {
		writeError(w, http.StatusNotImplemented, "follows are managed by the social graph")
		return
	}
	claims := claimsFrom(r.Context())
	followee := mux.Vars(r)["owner"]
	if err := s.deps.Follower.Follow(r.Context(), claims.Owner, followee); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.Cache != nil {
		s.deps.Cache.InvalidateFollowing(r.Context(), address(claims))
	}
	w.WriteHeader(http.StatusNoContent)
}
