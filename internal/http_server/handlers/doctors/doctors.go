package doctors

import (
	"context"
	"log/slog"
	"net/http"

	resp "medicare_service/internal/lib/api/response"
	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Doctors []models.Doctor `json:"doctors"`
}

type DoctorsProvider interface {
	Doctors(ctx context.Context) ([]models.Doctor, error)
}

func New(log *slog.Logger, provider DoctorsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.doctors.New"

		doctors, err := provider.Doctors(r.Context())
		if err != nil {
			log.Error("Failed to list doctors",
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			)

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if doctors == nil {
			doctors = []models.Doctor{}
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Doctors:  doctors,
		})
	}
}
