package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mfreeman451/clientradar/pkg/health"
	"github.com/mfreeman451/clientradar/pkg/models"
	"github.com/mfreeman451/clientradar/pkg/perf"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

func (s *APIServer) getClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := &models.ClientFilter{ActiveOnly: q.Get("active") != "false"}

	if v := q.Get("status"); v != "" {
		status := models.HealthStatus(v)
		if !status.Valid() {
			s.writeError(w, fmt.Errorf("%w: unknown status %q", errBadRequest, v))
			return
		}

		filter.Status = status
	}

	if v := q.Get("maintenance"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: maintenance: %w", errBadRequest, err))
			return
		}

		filter.Maintenance = &b
	}

	var err error

	if filter.Page, err = intParam(q.Get("page")); err != nil {
		s.writeError(w, err)
		return
	}

	if filter.PerPage, err = intParam(q.Get("per_page")); err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.dashboard.Clients(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

func (s *APIServer) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.dashboard.Client(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *APIServer) checkClient(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := health.CheckOptions{
		Force:              q.Get("force") != "false",
		IncludeMaintenance: q.Get("include_maintenance") == "true",
	}

	check, err := s.checker.CheckClient(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, check)
}

func (s *APIServer) getUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	to := q.Get("to")
	if to == "" {
		to = time.Now().UTC().Format(usage.DateLayout)
	}

	from := q.Get("from")
	if from == "" {
		end, err := time.Parse(usage.DateLayout, to)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %w", usage.ErrInvalidDate, err))
			return
		}

		from = end.AddDate(0, 0, -30).Format(usage.DateLayout)
	}

	for _, d := range []string{from, to} {
		if _, err := time.Parse(usage.DateLayout, d); err != nil {
			s.writeError(w, fmt.Errorf("%w %q", usage.ErrInvalidDate, d))
			return
		}
	}

	if from > to {
		s.writeError(w, fmt.Errorf("%w: %s after %s", usage.ErrInvalidRange, from, to))
		return
	}

	rollups, err := s.dashboard.Usage(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, rollups)
}

func (s *APIServer) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboard.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *APIServer) getOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dashboard.Overview(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, overview)
}

func (s *APIServer) getNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := &models.NotificationFilter{
		ClientID:       q.Get("client_id"),
		Type:           models.NotificationType(q.Get("type")),
		Status:         models.NotificationStatus(q.Get("status")),
		Unacknowledged: q.Get("unacknowledged") == "true",
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: since: %w", errBadRequest, err))
			return
		}

		filter.Since = &since
	}

	var err error

	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		s.writeError(w, err)
		return
	}

	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		s.writeError(w, err)
		return
	}

	feed, err := s.dashboard.Notifications(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, feed)
}

type ackRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

const maxBodyBytes = 64 << 10

func (s *APIServer) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: id: %w", errBadRequest, err))
		return
	}

	var req ackRequest

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil &&
		!errors.Is(err, io.EOF) {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	n, err := s.notifier.Acknowledge(r.Context(), id, req.Actor, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, n)
}

func (s *APIServer) getPerformance(w http.ResponseWriter, r *http.Request) {
	var sections []perf.Section

	if v := r.URL.Query().Get("sections"); v != "" {
		for _, name := range strings.Split(v, ",") {
			section, err := perf.ParseSection(strings.TrimSpace(name))
			if err != nil {
				s.writeError(w, err)
				return
			}

			sections = append(sections, section)
		}
	}

	report, err := s.reporter.Report(r.Context(), sections...)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", errBadRequest, v)
	}

	return n, nil
}
