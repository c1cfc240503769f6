package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/cmevents/internal/client"
	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/orderby"
	"github.com/alfredjeanlab/cmevents/internal/paginate"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

// MaxPageSize caps page_size on GET /v1/events, matching the upstream API.
const MaxPageSize = 500

// fieldError indicates an invalid query parameter.
// Handlers map it to 400 with the field named in the envelope.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + ": " + e.reason }

// handleListEvents handles GET /v1/events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		var fe *fieldError
		if errors.As(err, &fe) {
			writeFieldError(w, http.StatusBadRequest, fe.field, fe.reason)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("list events failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Ensure data is never null in JSON output.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, model.EventPage{
		Data:    events,
		Page:    paginate.ClampPage(filter.Page, total, filter.PageSize),
		Pages:   paginate.Pages(total, filter.PageSize),
		Results: total,
	})
}

func parseEventFilter(q url.Values) (model.EventFilter, error) {
	filter := model.EventFilter{
		EntityType: q.Get("entity_type"),
		Sort:       store.DefaultSort,
		Page:       1,
		PageSize:   paginate.DefaultPageSize,
	}

	if v := q.Get("status"); v != "" {
		for _, st := range splitList(v) {
			status := model.EventStatus(st)
			if !status.IsValid() {
				return filter, &fieldError{"status", "unknown status " + strconv.Quote(st)}
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if v := q.Get("action"); v != "" {
		for _, a := range splitList(v) {
			filter.Action = append(filter.Action, model.EventAction(a))
		}
	}
	if v := q.Get("entity_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, &fieldError{"entity_id", "must be an integer"}
		}
		filter.EntityID = &id
	}
	if v := q.Get("unseen"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &fieldError{"unseen", "must be a boolean"}
		}
		filter.Unseen = b
	}
	if v := q.Get("sort"); v != "" {
		field, _ := orderby.ParseSort(v)
		if _, ok := store.SortKey(field); !ok {
			return filter, &fieldError{"sort", "must be one of " + strings.Join(store.SortFields, ", ")}
		}
		filter.Sort = v
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, &fieldError{"page", "must be an integer"}
		}
		filter.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageSize {
			return filter, &fieldError{"page_size", "must be between 1 and " + strconv.Itoa(MaxPageSize)}
		}
		filter.PageSize = n
	}
	return filter, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// handleMarkSeen handles POST /v1/events/{id}/seen. The upstream mark goes
// first; the cache is only updated once the API has accepted it.
func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeFieldError(w, http.StatusBadRequest, "id", "must be a positive integer")
		return
	}

	if s.upstream != nil {
		if err := s.upstream.MarkEventSeen(r.Context(), id); err != nil {
			s.logger.Warn("mark seen upstream failed", "id", id, "err", err)
			status := http.StatusBadGateway
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				status = http.StatusNotFound
			}
			writeError(w, status, "mark seen upstream: "+err.Error())
			return
		}
	}

	marked, err := s.store.MarkSeen(r.Context(), id)
	if err != nil {
		s.logger.Error("mark seen failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to mark events seen")
		return
	}
	writeJSON(w, http.StatusOK, client.MarkSeenResponse{ID: id, Marked: marked})
}
