package verifyOTP

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
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type Response struct {
	resp.Response
	Token     string      `json:"token"`
	AccountID int64       `json:"account_id"`
	Role      models.Role `json:"role"`
}

type OTPVerifier interface {
	VerifyOTP(ctx context.Context, email, code string, role models.Role) (string, models.Account, error)
}

var validate = validator.New()

func New(log *slog.Logger, verifier OTPVerifier, role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyOTP.New"

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

		token, acc, err := verifier.VerifyOTP(r.Context(), req.Email, req.OTP, role)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidOTP) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid OTP"))

				return
			}

			log.Error("Failed to verify otp", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User logged in", slog.Int64("uid", acc.ID))

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			Token:     token,
			AccountID: acc.ID,
			Role:      acc.Role,
		})
	}
}
