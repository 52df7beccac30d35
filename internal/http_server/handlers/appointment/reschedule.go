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

type RescheduleRequest struct {
	Date string `json:"date" validate:"required"`
}

type Rescheduler interface {
	Reschedule(ctx context.Context, id int64, rawTime string, requester svc.Requester) (models.Appointment, error)
}

func NewReschedule(log *slog.Logger, rescheduler Rescheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointment.NewReschedule"

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

		var req RescheduleRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderDecodeError(w, r, log, err)
			return
		}

		if err := validate.Struct(req); err != nil {
			renderValidationError(w, r, err)
			return
		}

		a, err := rescheduler.Reschedule(r.Context(), id, req.Date, who)
		if err != nil {
			renderError(w, r, log, err)
			return
		}

		renderOK(w, r, a)
	}
}
