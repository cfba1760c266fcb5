package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/export"
	"agenda/internal/identity"
	"agenda/internal/models"
	"agenda/internal/notify"
)

const (
	maxExportDays = 366
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format; expected YYYY-MM-DD", name)
	}
	return date, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid booking id")
	}
	return id, nil
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in identity.SignUpInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// провайдеров заводит только доверенный клиент API
	if strings.TrimSpace(in.Role) == models.RoleProvider {
		client, ok := apiClientFrom(r.Context())
		if !ok || len(client.Permissions) == 0 || !hasPermission(client, permWriteProviders) {
			writeError(w, http.StatusForbidden, "provider accounts cannot be self-registered")
			return
		}
	}

	id, err := s.svc.Identity.SignUp(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": id})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.svc.Identity.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      session.Token,
		"user_id":    session.UserID,
		"role":       session.Role,
		"expires_at": session.ExpiresAt,
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := s.svc.Identity.SignOut(r.Context(), token); err != nil {
		s.writeDomainError(w, r, err, http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Identity.Profile(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := s.svc.Bookings.Availability(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(models.DateLayout),
		"slots": slots,
	})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := models.ParseDate(strings.TrimSpace(body.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), sessionFrom(r.Context()).UserID, date, strings.TrimSpace(body.Time))
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleClientCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.svc.Bookings.CancelByClient(r.Context(), sessionFrom(r.Context()).UserID, id)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleProviderCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.svc.Bookings.CancelByProvider(r.Context(), id, body.Reason)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAttend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.svc.Bookings.MarkAttended(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	session := sessionFrom(r.Context())
	if session.Role != models.RoleProvider && booking.UserID != session.UserID {
		s.writeDomainError(w, r, domain.NotFound("booking", r.PathValue("id")), http.StatusNotFound)
		return
	}

	body, err := notify.CalendarEvent(booking, s.calendar, s.loc)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"booking-%d.ics\"", booking.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sections, err := s.svc.History.History(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

func (s *HTTPServer) handlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.History.PurgeHistory(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAgenda(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.svc.Bookings.DayAgenda(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     date.Format(models.DateLayout),
		"bookings": entries,
	})
}

func (s *HTTPServer) handleAgendaExport(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	if to.Sub(from) > maxExportDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range is limited to %d days", maxExportDays))
		return
	}

	entries, err := s.svc.Bookings.AgendaRange(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	body, err := export.AgendaWorkbook(from, to, entries)
	if err != nil {
		s.log.Error().Err(err).Msg("build agenda workbook")
		writeError(w, http.StatusInternalServerError, "could not build export")
		return
	}

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type blockRequest struct {
	Date string `json:"date"`
	Type string `json:"type"`
	Time string `json:"time"`
}

func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocks, err := s.svc.Blocks.ListBlocks(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var body blockRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := models.ParseDate(strings.TrimSpace(body.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	block, err := s.svc.Blocks.CreateBlock(r.Context(), date, strings.TrimSpace(body.Type), strings.TrimSpace(body.Time))
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()

	err = s.svc.Blocks.RemoveBlock(r.Context(), date, strings.TrimSpace(q.Get("type")), strings.TrimSpace(q.Get("time")))
	if err != nil {
		s.writeDomainError(w, r, err, http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
