package appointment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	svc "medicare_service/internal/appointments"
	resp "medicare_service/internal/lib/api/response"
	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/middleware/session"
	"medicare_service/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Response struct {
	resp.Response
	Appointment models.Appointment `json:"appointment"`
}

type ListResponse struct {
	resp.Response
	Appointments []models.AppointmentView `json:"appointments"`
}

var validate = validator.New()

func requester(r *http.Request) (svc.Requester, bool) {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		return svc.Requester{}, false
	}

	return svc.Requester{ID: claims.UserID, Role: claims.Role}, true
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func renderOK(w http.ResponseWriter, r *http.Request, a models.Appointment) {
	render.JSON(w, r, Response{
		Response:    resp.OK(),
		Appointment: a,
	})
}

// * renderError переводит ошибки сервиса записей в HTTP статус
func renderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, svc.ErrInvalidInput):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Invalid input"))
	case errors.Is(err, svc.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.Error("Forbidden"))
	case errors.Is(err, svc.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Appointment not found"))
	case errors.Is(err, svc.ErrInvalidReference):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Unknown doctor or patient"))
	case errors.Is(err, svc.ErrSlotTaken):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, resp.Error("Doctor is already booked at this time"))
	case errors.Is(err, svc.ErrConflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, resp.Error("Appointment was changed, try again"))
	default:
		log.Error("Appointment request failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}

func renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error("Unauthorized"))
}

func renderDecodeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.Error("Failed to decode request body", sl.Err(err))

	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, resp.Error("Failed to decode request"))
}

func renderValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var validateErr validator.ValidationErrors
	errors.As(err, &validateErr)

	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, resp.ValidationError(validateErr))
}
