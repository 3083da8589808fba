package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/resolver"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

// DraftRequest is the body of note create and save requests.
type DraftRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (d DraftRequest) draft() workspace.Draft {
	return workspace.Draft{Title: d.Title, Content: d.Content, Tags: d.Tags}
}

// NoteRef is a note reduced to what lists of related notes show.
type NoteRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func refs(notes []model.Note) []NoteRef {
	out := make([]NoteRef, len(notes))
	for i, n := range notes {
		out[i] = NoteRef{ID: n.ID, Title: n.Title}
	}
	return out
}

// TokenView is a link token as rendered by clients.
type TokenView struct {
	Title    string           `json:"title"`
	Start    int              `json:"start"`
	End      int              `json:"end"`
	Status   linkgraph.Status `json:"status"`
	TargetID string           `json:"targetId,omitempty"`
}

func tokenViews(toks []linkgraph.Token) []TokenView {
	out := make([]TokenView, len(toks))
	for i, t := range toks {
		out[i] = TokenView{Title: t.Title, Start: t.Start, End: t.End, Status: t.Status, TargetID: t.TargetID}
	}
	return out
}

// NoteDetail is the response of GET /api/notes/{id}.
type NoteDetail struct {
	Note       model.Note       `json:"note"`
	Backlinks  []NoteRef        `json:"backlinks"`
	Tokens     []TokenView      `json:"tokens"`
	Permission model.Permission `json:"permission"`
	Owned      bool             `json:"owned"`
}

// ListNotes handles GET /api/notes?sort=&q=&tag=.
func (s *Server) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := projection.ParseSortKey(q.Get("sort"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	notes := s.ws.Project(projection.Options{Sort: key, Search: q.Get("q"), Tags: q["tag"]})
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "count": len(notes)})
}

// CreateNote handles POST /api/notes.
func (s *Server) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.ws.Create(r.Context(), req.draft())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// GetNote handles GET /api/notes/{id}.
func (s *Server) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, ok := s.ws.Get(id)
	if !ok {
		s.writeError(w, r, workspace.ErrNoteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NoteDetail{
		Note:       n,
		Backlinks:  refs(s.ws.Backlinks(id)),
		Tokens:     tokenViews(s.ws.Tokens(n.Content)),
		Permission: s.ws.Permission(id),
		Owned:      s.ws.IsOwner(id),
	})
}

// SaveNote handles PUT /api/notes/{id}.
func (s *Server) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.ws.Save(r.Context(), chi.URLParam(r, "id"), req.draft())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (s *Server) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DuplicateNote handles POST /api/notes/{id}/duplicate.
func (s *Server) DuplicateNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.ws.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// LinkRequest is the body of POST /api/notes/{id}/links: the editor text,
// the cursor position in bytes and the accepted title.
type LinkRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
	Title  string `json:"title"`
}

// LinkResponse carries the rewritten text. Error is set when the link was
// inserted but its target could not be created.
type LinkResponse struct {
	Text     string `json:"text"`
	Cursor   int    `json:"cursor"`
	TargetID string `json:"targetId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InsertLink handles POST /api/notes/{id}/links. The note itself is not
// saved; the client saves the returned text.
func (s *Server) InsertLink(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ws.Get(chi.URLParam(r, "id")); !ok {
		s.writeError(w, r, workspace.ErrNoteNotFound)
		return
	}
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	ins, err := s.ws.InsertLink(r.Context(), req.Text, req.Cursor, req.Title)
	resp := LinkResponse{Text: ins.Text, Cursor: ins.Cursor, TargetID: ins.TargetID}
	if err != nil {
		s.logger.Warn("link target not created", "title", req.Title, "error", err)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ShareRequest is the body of POST /api/notes/{id}/shares.
type ShareRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

// ListShares handles GET /api/notes/{id}/shares.
func (s *Server) ListShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.ws.Shares(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if shares == nil {
		shares = []model.Share{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
}

// ShareNote handles POST /api/notes/{id}/shares.
func (s *Server) ShareNote(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if !decode(w, r, &req) {
		return
	}
	level, err := model.ParsePermission(req.Permission)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	share, err := s.ws.Share(r.Context(), chi.URLParam(r, "id"), req.Email, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

// Unshare handles DELETE /api/notes/{id}/shares/{grantee}.
func (s *Server) Unshare(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Unshare(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "grantee")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /api/tags.
func (s *Server) ListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tags": s.ws.AllTags()})
}

// GetGraph handles GET /api/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g := s.ws.Graph()
	if g.Nodes == nil {
		g.Nodes = []linkgraph.Node{}
	}
	if g.Edges == nil {
		g.Edges = []linkgraph.Edge{}
	}
	writeJSON(w, http.StatusOK, g)
}

// ResolveTitle handles GET /api/titles/{title}. It never creates notes.
func (s *Server) ResolveTitle(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}
	n, ok := s.ws.GetNoteByTitle(title)
	if !ok {
		s.writeError(w, r, workspace.ErrNoteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NoteRef{ID: n.ID, Title: n.Title})
}

// Suggest handles GET /api/suggest?q=&limit=.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sugg := s.ws.Resolver().Suggest(r.URL.Query().Get("q"), limit)
	if sugg == nil {
		sugg = []resolver.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": sugg})
}
