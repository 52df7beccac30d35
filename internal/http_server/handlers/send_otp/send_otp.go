package sendOTP

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"medicare_service/internal/auth"
	resp "medicare_service/internal/lib/api/response"
	sl "medicare_service/internal/lib/logger"
	"medicare_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OTPSender interface {
	SendOTP(ctx context.Context, email, password string, role models.Role) error
}

var validate = validator.New()

// New is the first login step: password check, then the code goes out by mail.
func New(log *slog.Logger, sender OTPSender, role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendOTP.New"

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

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		err := sender.SendOTP(r.Context(), req.Email, req.Password, role)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid credentials"))
			case errors.Is(err, auth.ErrDeliveryFailed):
				log.Error("Failed to deliver otp", sl.Err(err))

				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Failed to send OTP"))
			default:
				log.Error("Failed to send otp", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.OK())
	}
}
