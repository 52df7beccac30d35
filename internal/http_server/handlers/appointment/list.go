package appointment

import (
	"context"
	"log/slog"
	"net/http"

	resp "medicare_service/internal/lib/api/response"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Lister interface {
	ListForPatient(ctx context.Context, patientID int64) ([]models.AppointmentView, error)
	ListForDoctor(ctx context.Context, doctorID int64) ([]models.AppointmentView, error)
}

// NewList lists the caller's own appointments, picked by session role.
func NewList(log *slog.Logger, lister Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointment.NewList"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		who, ok := requester(r)
		if !ok {
			renderUnauthorized(w, r)
			return
		}

		var (
			views []models.AppointmentView
			err   error
		)

		switch who.Role {
		case models.RolePatient:
			views, err = lister.ListForPatient(r.Context(), who.ID)
		case models.RoleDoctor:
			views, err = lister.ListForDoctor(r.Context(), who.ID)
		default:
			renderUnauthorized(w, r)
			return
		}
		if err != nil {
			renderError(w, r, log, err)
			return
		}

		if views == nil {
			views = []models.AppointmentView{}
		}

		render.JSON(w, r, ListResponse{
			Response:     resp.OK(),
			Appointments: views,
		})
	}
}
