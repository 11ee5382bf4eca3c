// Package handlers provides the HTTP endpoints of the dosecurve API.
// This file implements the HTTPHandler interface with dependency injection.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giygas/dosecurve-api/data"
	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/logging"
	"github.com/giygas/dosecurve-api/metrics"
	"github.com/giygas/dosecurve-api/pharmacokinetics"
	"github.com/giygas/dosecurve-api/validation"
)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	profiles  *data.Profiles
	simulator interfaces.Simulator
	validator interfaces.DoseValidator
	health    interfaces.HealthChecker
	startTime time.Time
}

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(store interfaces.DoseStore, simulator interfaces.Simulator,
	validator interfaces.DoseValidator, health interfaces.HealthChecker) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		profiles:  data.NewProfiles(store),
		simulator: simulator,
		validator: validator,
		health:    health,
		startTime: time.Now(),
	}
}

// ProfileResponse is the dose list of one profile
type ProfileResponse struct {
	ID       string                     `json:"id"`
	Doses    []pharmacokinetics.RawDose `json:"doses"`
	MaxDoses int                        `json:"max_doses"`
}

// ConcentrationsResponse holds the daily samples of a simulation
type ConcentrationsResponse struct {
	Doses   []pharmacokinetics.DoseEvent           `json:"doses"`
	Samples []pharmacokinetics.ConcentrationSample `json:"samples"`
}

// WeeklyResponse holds the weekly averages of a simulation
type WeeklyResponse struct {
	Weeks []WeeklyEntry `json:"weeks"`
}

type WeeklyEntry struct {
	WeekIndex        int     `json:"weekIndex"`
	Label            string  `json:"label"`
	AvgConcentration float64 `json:"avgConcentration"`
}

// SimulationRequest is the body of POST /v1/simulate
type SimulationRequest struct {
	Doses []pharmacokinetics.RawDose `json:"doses"`
}

// SimulationResponse is the result of a stateless simulation
type SimulationResponse struct {
	Doses   []pharmacokinetics.DoseEvent           `json:"doses"`
	Samples []pharmacokinetics.ConcentrationSample `json:"samples"`
	Weekly  []WeeklyEntry                          `json:"weekly"`
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

// profileID validates the {id} path parameter, answering 400 when invalid
func (h *HTTPHandlerImpl) profileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := h.validator.ValidateProfileID(raw)
	if err != nil {
		logging.Warn("Unusual user input", "id", raw, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// loadProfile resolves the {id} path parameter to its stored dose list,
// answering 400, 404 or 500 itself when it cannot.
func (h *HTTPHandlerImpl) loadProfile(w http.ResponseWriter, r *http.Request) (string, []pharmacokinetics.RawDose, bool) {
	id, ok := h.profileID(w, r)
	if !ok {
		return "", nil, false
	}

	doses, err := h.profiles.Load(r.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		h.RespondWithError(w, http.StatusNotFound, "Profile not found")
		return "", nil, false
	}
	if err != nil {
		logging.Error("Failed to load profile", "id", id, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to load profile")
		return "", nil, false
	}

	return id, doses, true
}

// saveProfile stores doses and answers with the resulting list
func (h *HTTPHandlerImpl) saveProfile(w http.ResponseWriter, r *http.Request, id string, doses []pharmacokinetics.RawDose, code int) {
	saved, err := h.profiles.Save(r.Context(), id, doses)
	if err != nil {
		logging.Error("Failed to save profile", "id", id, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}

	h.respondWithProfile(w, code, id, saved)
}

// requestError is returned from profile edits to answer with a client error
type requestError struct {
	code int
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{code: http.StatusBadRequest, err: err}
}

// updateProfile applies edit to the stored list of profile id atomically and
// answers with the result
func (h *HTTPHandlerImpl) updateProfile(w http.ResponseWriter, r *http.Request, id string, code int,
	edit func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error)) {
	saved, err := h.profiles.Update(r.Context(), id, edit)

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		h.RespondWithError(w, reqErr.code, reqErr.Error())
	case errors.Is(err, data.ErrNotFound):
		h.RespondWithError(w, http.StatusNotFound, "Profile not found")
	case err != nil:
		logging.Error("Failed to update profile", "id", id, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to save profile")
	default:
		h.respondWithProfile(w, code, id, saved)
	}
}

func (h *HTTPHandlerImpl) respondWithProfile(w http.ResponseWriter, code int, id string, doses []pharmacokinetics.RawDose) {
	h.RespondWithJSON(w, code, ProfileResponse{
		ID:       id,
		Doses:    doses,
		MaxDoses: h.validator.MaxDoses(),
	})
}

// decodeJSON decodes the request body into v, answering 400 on failure
func (h *HTTPHandlerImpl) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
		return false
	}
	return true
}

// CreateProfile creates a profile holding one blank entry
func (h *HTTPHandlerImpl) CreateProfile(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	w.Header().Set("Location", "/v1/profiles/"+id+"/doses")
	h.saveProfile(w, r, id, nil, http.StatusCreated)
}

// DeleteProfile removes a profile and its doses
func (h *HTTPHandlerImpl) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	err := h.profiles.Delete(r.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		h.RespondWithError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		logging.Error("Failed to delete profile", "id", id, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetDoses returns the entries as stored, malformed ones included
func (h *HTTPHandlerImpl) GetDoses(w http.ResponseWriter, r *http.Request) {
	id, doses, ok := h.loadProfile(w, r)
	if !ok {
		return
	}

	h.RespondWithJSON(w, http.StatusOK, ProfileResponse{
		ID:       id,
		Doses:    doses,
		MaxDoses: h.validator.MaxDoses(),
	})
}

// ReplaceDoses replaces the whole list
func (h *HTTPHandlerImpl) ReplaceDoses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req SimulationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateDoseList(req.Doses); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.updateProfile(w, r, id, http.StatusOK, func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		return req.Doses, nil
	})
}

// AppendDose adds an entry at the end. An empty body appends a blank row.
func (h *HTTPHandlerImpl) AppendDose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var entry pharmacokinetics.RawDose
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &entry); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
			return
		}
	}

	h.updateProfile(w, r, id, http.StatusCreated, func(doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		next := append(doses, entry)
		if err := h.validator.ValidateDoseList(next); err != nil {
			if errors.Is(err, validation.ErrTooManyDoses) {
				return nil, &requestError{
					code: http.StatusConflict,
					err:  fmt.Errorf("Profile already holds the maximum of %d doses", h.validator.MaxDoses()),
				}
			}
			return nil, badRequest(err)
		}
		return next, nil
	})
}

// UpdateDose sets the date and/or amount of one entry. Fields absent from
// the body are left unchanged.
func (h *HTTPHandlerImpl) UpdateDose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if !h.decodeJSON(w, r, &fields) {
		return
	}

	var date, amount *string
	if raw, present := fields["date"]; present {
		var d string
		if err := json.Unmarshal(raw, &d); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, "date must be a string")
			return
		}
		date = &d
	}
	if raw, present := fields["amount"]; present {
		// reuse RawDose decoding so numbers and strings are both accepted
		var parsed pharmacokinetics.RawDose
		if err := json.Unmarshal([]byte(`{"amount":`+string(raw)+`}`), &parsed); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount = &parsed.Amount
	}

	rawIndex := chi.URLParam(r, "index")
	h.updateProfile(w, r, id, http.StatusOK, func(doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		index, err := h.validator.ValidateIndex(rawIndex, len(doses))
		if err != nil {
			return nil, indexError(err)
		}

		if date != nil {
			doses[index].Date = *date
		}
		if amount != nil {
			doses[index].Amount = *amount
		}

		if err := h.validator.ValidateRawDose(doses[index]); err != nil {
			return nil, badRequest(err)
		}
		if err := h.validator.ValidateSpan(pharmacokinetics.NormalizeDoses(doses)); err != nil {
			return nil, badRequest(err)
		}
		return doses, nil
	})
}

// RemoveDose deletes one entry; removing the last one leaves a blank row
func (h *HTTPHandlerImpl) RemoveDose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	rawIndex := chi.URLParam(r, "index")
	h.updateProfile(w, r, id, http.StatusOK, func(doses []pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		index, err := h.validator.ValidateIndex(rawIndex, len(doses))
		if err != nil {
			return nil, indexError(err)
		}
		return append(doses[:index], doses[index+1:]...), nil
	})
}

func indexError(err error) error {
	if errors.Is(err, validation.ErrIndexOutOfRange) {
		return &requestError{code: http.StatusNotFound, err: err}
	}
	return badRequest(err)
}

// ImportDoses replaces the list with the rows of a TSV or CSV body
func (h *HTTPHandlerImpl) ImportDoses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}

	doses, err := pharmacokinetics.ParseDoseTable(r.Body)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.validator.ValidateDoseList(doses); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.Info("Dose table imported", "id", id, "rows", len(doses))
	h.updateProfile(w, r, id, http.StatusOK, func([]pharmacokinetics.RawDose) ([]pharmacokinetics.RawDose, error) {
		return doses, nil
	})
}

// run simulates doses and records the simulation metrics
func (h *HTTPHandlerImpl) run(source string, doses []pharmacokinetics.RawDose) pharmacokinetics.Result {
	result, hit := h.simulator.Run(doses)
	metrics.ObserveSimulation(source, len(result.Samples), hit)
	return result
}

// runStored simulates a stored list, answering 400 when its span exceeds the cap
func (h *HTTPHandlerImpl) runStored(w http.ResponseWriter, doses []pharmacokinetics.RawDose) (pharmacokinetics.Result, bool) {
	if err := h.validator.ValidateSpan(pharmacokinetics.NormalizeDoses(doses)); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return pharmacokinetics.Result{}, false
	}
	return h.run("profile", doses), true
}

// GetConcentrations simulates the stored list
func (h *HTTPHandlerImpl) GetConcentrations(w http.ResponseWriter, r *http.Request) {
	_, doses, ok := h.loadProfile(w, r)
	if !ok {
		return
	}

	result, ok := h.runStored(w, doses)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, ConcentrationsResponse{
		Doses:   result.Doses,
		Samples: result.Samples,
	})
}

// ExportConcentrations writes the date/concentration table as TSV
func (h *HTTPHandlerImpl) ExportConcentrations(w http.ResponseWriter, r *http.Request) {
	id, doses, ok := h.loadProfile(w, r)
	if !ok {
		return
	}

	result, ok := h.runStored(w, doses)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := pharmacokinetics.WriteConcentrationTable(&buf, result.Samples); err != nil {
		logging.Error("Failed to write concentration table", "id", id, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to export concentrations")
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="concentrations-%s.tsv"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetWeeklyAverages returns the weekly averages of the stored list
func (h *HTTPHandlerImpl) GetWeeklyAverages(w http.ResponseWriter, r *http.Request) {
	_, doses, ok := h.loadProfile(w, r)
	if !ok {
		return
	}

	result, ok := h.runStored(w, doses)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, WeeklyResponse{Weeks: weeklyEntries(result.Weekly)})
}

// Simulate runs a stateless simulation of the posted entries
func (h *HTTPHandlerImpl) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateDoseList(req.Doses); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.run("adhoc", req.Doses)
	h.RespondWithJSON(w, http.StatusOK, SimulationResponse{
		Doses:   result.Doses,
		Samples: result.Samples,
		Weekly:  weeklyEntries(result.Weekly),
	})
}

// GetCompound returns the properties of the modelled compound
func (h *HTTPHandlerImpl) GetCompound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.RespondWithJSON(w, http.StatusOK, pharmacokinetics.Compound())
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, httpStatus := h.health.HealthCheck(r.Context())

	h.RespondWithJSON(w, httpStatus, HealthResponse{
		Status:        status,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Data:          details,
	})
}

func weeklyEntries(weekly []pharmacokinetics.WeeklyAverage) []WeeklyEntry {
	entries := make([]WeeklyEntry, len(weekly))
	for i, wa := range weekly {
		entries[i] = WeeklyEntry{
			WeekIndex:        wa.WeekIndex,
			Label:            wa.Label(),
			AvgConcentration: wa.AvgConcentration,
		}
	}
	return entries
}
