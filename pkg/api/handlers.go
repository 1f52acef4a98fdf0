package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/ghmirror/pkg/types"
)

// Path segments naming the owner kind, shared with the mirror client
const (
	ownerTypeOrg  = "org"
	ownerTypeUser = "user"
)

func (s *Server) handleOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.engine.Store().GetOrganization(r.PathValue("name"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if org == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, org)
}

func (s *Server) handleUserRepositories(w http.ResponseWriter, r *http.Request) {
	userRepos, err := s.engine.Store().GetUserRepositories(r.PathValue("name"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if userRepos == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, userRepos)
}

func (s *Server) handleRepository(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromPath(r)
	if !ok {
		http.Error(w, "Invalid owner type", http.StatusBadRequest)
		return
	}

	repo, err := s.engine.Store().GetRepository(owner, r.PathValue("repoName"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if repo == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, repo)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromPath(r)
	if !ok {
		http.Error(w, "Invalid owner type", http.StatusBadRequest)
		return
	}

	number, err := strconv.Atoi(r.PathValue("issueNumber"))
	if err != nil {
		http.Error(w, "Invalid issue number", http.StatusBadRequest)
		return
	}

	issue, err := s.engine.Store().GetIssue(owner, r.PathValue("repoName"), number)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if issue == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, issue)
}

// handleBulkIssues returns the issues named by either an inclusive
// start/end number range or a comma-separated issueList. Absent issues
// are skipped rather than reported.
func (s *Server) handleBulkIssues(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromPath(r)
	if !ok {
		http.Error(w, "Invalid owner type", http.StatusBadRequest)
		return
	}
	repoName := r.PathValue("repoName")

	query := r.URL.Query()
	startRaw := query.Get("start")
	endRaw := query.Get("end")
	listRaw := query.Get("issueList")

	result := types.BulkIssues{Issues: []*types.Issue{}}

	switch {
	case startRaw != "" && endRaw != "":
		start, err := strconv.Atoi(startRaw)
		if err != nil {
			http.Error(w, "Invalid start parameter", http.StatusBadRequest)
			return
		}
		end, err := strconv.Atoi(endRaw)
		if err != nil {
			http.Error(w, "Invalid end parameter", http.StatusBadRequest)
			return
		}

		for number := start; number <= end; number++ {
			issue, err := s.engine.Store().GetIssue(owner, repoName, number)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if issue != nil {
				result.Issues = append(result.Issues, issue)
			}
		}

	case listRaw != "":
		for _, part := range strings.Split(listRaw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			number, err := strconv.Atoi(part)
			if err != nil {
				http.Error(w, "Invalid issueList parameter", http.StatusBadRequest)
				return
			}

			issue, err := s.engine.Store().GetIssue(owner, repoName, number)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if issue != nil {
				result.Issues = append(result.Issues, issue)
			}
		}

	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.writeJSON(w, result)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.engine.Store().GetUser(r.PathValue("loginName"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if user == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, user)
}

// handleChangeEvents returns the change log entries at or after the
// since parameter (epoch milliseconds, defaults to zero), oldest first
func (s *Server) handleChangeEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	changes, err := s.engine.Store().RecentChangeEvents(since)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if changes == nil {
		changes = []types.ResourceChangeEvent{}
	}
	s.writeJSON(w, changes)
}

func (s *Server) handleFullScan(w http.ResponseWriter, r *http.Request) {
	s.engine.RequestFullScan()
	s.logger.Info().Str("client", clientAddr(r)).Msg("Full scan requested over the API")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "scheduled"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Read failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// ownerFromPath decodes the {ownerType}/{ownerName} path segments
func ownerFromPath(r *http.Request) (types.Owner, bool) {
	name := r.PathValue("ownerName")
	switch r.PathValue("ownerType") {
	case ownerTypeOrg:
		return types.OrgOwner(name), true
	case ownerTypeUser:
		return types.UserOwner(name), true
	default:
		return types.Owner{}, false
	}
}
