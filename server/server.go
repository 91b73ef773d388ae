package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clovemart/clovemart/internal/config"
	"github.com/clovemart/clovemart/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/payments/webhook", h.PaymentWebhook).Methods("POST").Name("payments.webhook")
	api.HandleFunc("/payments/verify", h.PaymentVerify).Methods("POST").Name("payments.verify")
	api.HandleFunc("/payments/retry", h.PaymentRetry).Methods("GET").Name("payments.retry")

	// Checkout resolves an optional session token so wallet credits can be
	// applied for logged-in customers.
	checkout := api.PathPrefix("/payments").Subrouter()
	checkout.Use(h.OptionalAuth)
	checkout.HandleFunc("/create-order", h.PaymentCreateOrder).Methods("POST").Name("payments.create_order")

	api.HandleFunc("/auth/otp/request", h.OTPRequest).Methods("POST").Name("auth.otp.request")
	api.HandleFunc("/auth/otp/verify", h.OTPVerify).Methods("POST").Name("auth.otp.verify")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{id}", h.AdminGetOrder).Methods("GET").Name("admin.orders.get")
	admin.HandleFunc("/orders/{id}/shipment", h.AdminRetriggerShipment).Methods("POST").Name("admin.orders.shipment")

	return r
}
