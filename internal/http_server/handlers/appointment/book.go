package appointment

import (
	"context"
	"log/slog"
	"net/http"

	svc "medicare_service/internal/appointments"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type BookRequest struct {
	DoctorID int64  `json:"doctor_id" validate:"required"`
	Date     string `json:"date" validate:"required"`
}

type Booker interface {
	Book(ctx context.Context, requester svc.Requester, doctorID int64, rawTime string) (models.Appointment, error)
}

func NewBook(log *slog.Logger, booker Booker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointment.NewBook"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		who, ok := requester(r)
		if !ok {
			renderUnauthorized(w, r)
			return
		}

		var req BookRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderDecodeError(w, r, log, err)
			return
		}

		if err := validate.Struct(req); err != nil {
			renderValidationError(w, r, err)
			return
		}

		a, err := booker.Book(r.Context(), who, req.DoctorID, req.Date)
		if err != nil {
			renderError(w, r, log, err)
			return
		}

		render.Status(r, http.StatusCreated)
		renderOK(w, r, a)
	}
}
