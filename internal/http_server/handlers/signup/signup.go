package signup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"medicare_service/internal/auth"
	resp "medicare_service/internal/lib/api/response"
	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	Specialization string `json:"specialization,omitempty"`
}

type Response struct {
	resp.Response
	AccountID int64 `json:"account_id"`
}

type AccountRegistrar interface {
	RegisterAccount(
		ctx context.Context,
		name, email, password string,
		role models.Role,
		specialization string,
	) (models.Account, error)
}

var validate = validator.New()

// New handles both /signup and /doctor/signup. Doctors must name a specialization.
func New(log *slog.Logger, registrar AccountRegistrar, role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

		log := log.With(
			slog.String("op", op),
			slog.String("role", string(role)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			log.Info("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		req.Specialization = strings.TrimSpace(req.Specialization)
		if role == models.RoleDoctor && req.Specialization == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("field Specialization is a required field"))

			return
		}

		acc, err := registrar.RegisterAccount(r.Context(), req.Name, req.Email, req.Password, role, req.Specialization)
		if err != nil {
			if errors.Is(err, auth.ErrAccountExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Email already registered"))

				return
			}

			log.Error("Failed to register account", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Account registered", slog.Int64("id", acc.ID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:  resp.OK(),
			AccountID: acc.ID,
		})
	}
}
