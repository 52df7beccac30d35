package appointment

import (
	"context"
	"log/slog"
	"net/http"

	svc "medicare_service/internal/appointments"
	resp "medicare_service/internal/lib/api/response"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type UpdateStatusRequest struct {
	ID     int64         `json:"id" validate:"required"`
	Status models.Status `json:"status" validate:"required"`
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id int64, next models.Status, requester svc.Requester) (models.Appointment, error)
	Cancel(ctx context.Context, id int64, requester svc.Requester) (models.Appointment, error)
}

func NewUpdateStatus(log *slog.Logger, updater StatusUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointment.NewUpdateStatus"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		who, ok := requester(r)
		if !ok {
			renderUnauthorized(w, r)
			return
		}

		var req UpdateStatusRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderDecodeError(w, r, log, err)
			return
		}

		if err := validate.Struct(req); err != nil {
			renderValidationError(w, r, err)
			return
		}

		a, err := updater.UpdateStatus(r.Context(), req.ID, req.Status, who)
		if err != nil {
			renderError(w, r, log, err)
			return
		}

		renderOK(w, r, a)
	}
}

func NewCancel(log *slog.Logger, updater StatusUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointment.NewCancel"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		who, ok := requester(r)
		if !ok {
			renderUnauthorized(w, r)
			return
		}

		id, ok := idParam(r)
		if !ok {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid appointment id"))
			return
		}

		a, err := updater.Cancel(r.Context(), id, who)
		if err != nil {
			renderError(w, r, log, err)
			return
		}

		renderOK(w, r, a)
	}
}
