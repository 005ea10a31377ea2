package server

import (
	"net/http"

	"multitrack/core/tree"
	"multitrack/logger"
	"multitrack/model"
	"multitrack/storage"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// trackView is a tree node with its media resolved to gateway URLs.
type trackView struct {
	ID          string       `json:"id"`
	Kind        model.Kind   `json:"kind"`
	ParentID    string       `json:"parentId,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	AudioURL    string       `json:"audioUrl,omitempty"`
	MixURL      string       `json:"mixUrl,omitempty"`
	Children    []*trackView `json:"children"`
}

type forestView struct {
	Owner      *model.Profile       `json:"owner,omitempty"`
	Publishing bool                 `json:"publishing"`
	Roots      []*trackView         `json:"roots"`
	Orphans    []tree.OrphanWarning `json:"orphans"`
}

func viewOf(n *tree.Node, r storage.Resolver) *trackView {
	rec := n.Record
	v := &trackView{
		ID:          rec.ID,
		Kind:        rec.Kind,
		ParentID:    rec.ParentID,
		Title:       rec.Title,
		Description: rec.Description,
		Children:    make([]*trackView, 0, len(n.Children)),
	}
	if len(rec.MediaRefs) > 0 {
		v.AudioURL = r.Resolve(rec.MediaRefs[0])
		v.MixURL = r.Resolve(rec.MixRef())
	}
	for _, c := range n.Children {
		v.Children = append(v.Children, viewOf(c, r))
	}
	return v
}

func forestOf(f *tree.Forest, r storage.Resolver) forestView {
	out := forestView{Roots: make([]*trackView, 0, len(f.Roots)), Orphans: f.Orphans}
	for _, n := range f.Roots {
		out.Roots = append(out.Roots, viewOf(n, r))
	}
	return out
}

// handleTracks returns an owner's publications as a forest.
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	records, err := s.deps.Index.Publications(r.Context(), owner)
	if err != nil {
		logger.Error("[Server] 获取发布列表失败", logger.String("owner", owner), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "index unavailable")
		return
	}
	fv := forestOf(tree.Build(records), s.deps.Resolver)
	fv.Publishing = s.deps.Hub.InFlight(owner)
	writeJSON(w, http.StatusOK, fv)
}

const feedConcurrency = 4

// handleFeed returns the caller's forest followed by one per followed
// profile, in follow order.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	ctx := r.Context()

	following, err := s.deps.Index.Following(ctx, address(claims))
	if err != nil {
		logger.Error("[Server] 获取关注列表失败", logger.String("owner", claims.Owner), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "index unavailable")
		return
	}

	profiles := make([]model.Profile, 0, len(following)+1)
	profiles = append(profiles, model.Profile{ID: claims.Owner, Handle: claims.Owner})
	for _, p := range following {
		if p.ID != claims.Owner {
			profiles = append(profiles, p)
		}
	}

	forests := make([]forestView, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedConcurrency)
	for i := range profiles {
		i := i
		g.Go(func() error {
			records, err := s.deps.Index.Publications(gctx, profiles[i].ID)
			if err != nil {
				return err
			}
			fv := forestOf(tree.Build(records), s.deps.Resolver)
			fv.Owner = &profiles[i]
			fv.Publishing = s.deps.Hub.InFlight(profiles[i].ID)
			forests[i] = fv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("[Server] 构建动态失败", logger.String("owner", claims.Owner), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": forests})
}
