package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func SignUp() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

// SendOTP caps password checks and outgoing mail per client.
func SendOTP() func(http.Handler) http.Handler {
	return limitByIP(5, 10*time.Minute)
}

func VerifyOTP() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func Appointments() func(http.Handler) http.Handler {
	return limitByIP(60, time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(limit, window)
}
