package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"geuebt/pkg/domain"
)

// Success messages keep the wording existing clients match on.
const (
	msgIsolateAdded  = "Metadata added succesfully"
	msgProfileAdded  = "Allele profile added succesfully"
	msgSequenceAdded = "Sequence added succesfully"
	msgClusterAdded  = "Cluster added succesfully"
	msgReportAdded   = "Report added succesfully"
)

type message struct {
	Message string `json:"message"`
}

type handlers struct {
	reg     Registry
	logger  *slog.Logger
	maxBody int64
}

// decode reads the request body into v, writing a 413 when it exceeds the
// configured limit and a 422 on any other failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Detail: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
		})
		return false
	}
	writeViolations(w, []domain.FieldViolation{decodeViolation(err)})
	return false
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func species(r *http.Request) domain.Organism {
	return domain.Organism(r.URL.Query().Get("species"))
}

func (h *handlers) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, message{Message: "Nothing to do here"})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) createIsolate(w http.ResponseWriter, r *http.Request) {
	var iso domain.Isolate
	if !h.decode(w, r, &iso) {
		return
	}
	_, err := h.reg.CreateIsolate(r.Context(), iso)
	h.respond(w, message{Message: msgIsolateAdded}, err)
}

func (h *handlers) listIsolates(w http.ResponseWriter, r *http.Request) {
	refs, err := h.reg.ListIsolates(r.Context(), species(r))
	h.respond(w, refs, err)
}

func (h *handlers) getIsolate(w http.ResponseWriter, r *http.Request) {
	iso, err := h.reg.GetIsolate(r.Context(), pathParam(r, "isolate_id"))
	h.respond(w, iso, err)
}

func (h *handlers) attachAlleleProfile(w http.ResponseWriter, r *http.Request) {
	var update domain.AlleleProfileUpdate
	if !h.decode(w, r, &update) {
		return
	}
	_, err := h.reg.AttachAlleleProfile(r.Context(), pathParam(r, "isolate_id"), update)
	h.respond(w, message{Message: msgProfileAdded}, err)
}

func (h *handlers) getAlleleProfile(w http.ResponseWriter, r *http.Request) {
	view, err := h.reg.GetAlleleProfile(r.Context(), pathParam(r, "isolate_id"))
	h.respond(w, view, err)
}

func (h *handlers) createSequence(w http.ResponseWriter, r *http.Request) {
	var seq domain.Sequence
	if !h.decode(w, r, &seq) {
		return
	}
	_, err := h.reg.CreateSequence(r.Context(), seq)
	h.respond(w, message{Message: msgSequenceAdded}, err)
}

func (h *handlers) getSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.reg.GetSequence(r.Context(), pathParam(r, "isolate_id"))
	h.respond(w, seq, err)
}

func (h *handlers) upsertCluster(w http.ResponseWriter, r *http.Request) {
	var c domain.Cluster
	if !h.decode(w, r, &c) {
		return
	}
	_, err := h.reg.UpsertCluster(r.Context(), pathParam(r, "cluster_id"), c)
	h.respond(w, message{Message: msgClusterAdded}, err)
}

func (h *handlers) listClusters(w http.ResponseWriter, r *http.Request) {
	refs, err := h.reg.ListClusters(r.Context(), species(r))
	h.respond(w, refs, err)
}

func (h *handlers) getCluster(w http.ResponseWriter, r *http.Request) {
	c, err := h.reg.GetCluster(r.Context(), pathParam(r, "cluster_id"))
	h.respond(w, c, err)
}

func (h *handlers) getOrphanCluster(w http.ResponseWriter, r *http.Request) {
	organism := domain.Organism(pathParam(r, "species"))
	if !organism.Valid() {
		writeViolations(w, []domain.FieldViolation{{
			Type:  domain.ViolationEnum,
			Loc:   []string{"path", "species"},
			Msg:   "Input should be a supported organism",
			Input: string(organism),
		}})
		return
	}
	c, err := h.reg.GetOrphanCluster(r.Context(), organism)
	h.respond(w, c, err)
}

func (h *handlers) createRun(w http.ResponseWriter, r *http.Request) {
	var report domain.RunReport
	if !h.decode(w, r, &report) {
		return
	}
	_, err := h.reg.CreateRun(r.Context(), report)
	h.respond(w, message{Message: msgReportAdded}, err)
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	refs, err := h.reg.ListRuns(r.Context())
	h.respond(w, refs, err)
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.reg.GetRun(r.Context(), pathParam(r, "run_name"))
	h.respond(w, report, err)
}
