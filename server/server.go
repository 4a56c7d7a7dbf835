package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pashuarogyam/vetai"
	"github.com/pashuarogyam/vetai/advisor"
	"github.com/pashuarogyam/vetai/image"
)

type (
	BadRequestError     struct{ error }
	InternalServerError struct{ error }
)

const (
	requestIDHeader = "X-Request-ID"

	// A base64 data URL of the largest accepted image plus room for the text.
	maxBodyBytes = image.MaxBytes*4/3 + 1024*1024

	// Upper bound of one /v1/ask request, including every retry and wait.
	askTimeout = 2 * time.Minute
)

type requestIDKey struct{}

type askRequest struct {
	Question string `json:"question" validate:"max=4000"`

	// Base64 data URL of an animal photo.
	Image string `json:"image"`

	// Earlier exchanges of the same conversation, oldest first.
	History []advisor.Exchange `json:"history" validate:"max=50,dive"`
}

type healthResponse struct {
	advisor.Health
	Quota vetai.QuotaStatus `json:"quota"`
}

type Server struct {
	advisor *advisor.Service

	// Bearer token expected from clients. Empty disables authentication.
	apiKey string

	// Questions accepted per client IP and minute. Zero disables the limit.
	askRateLimit int

	validate *validator.Validate
	logger   *zap.SugaredLogger
}

type Option func(*Server)

// WithAskRateLimit bounds how many questions one client IP may send per
// minute. Every question can cost provider quota.
func WithAskRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.askRateLimit = perMinute
	}
}

func NewServer(
	service *advisor.Service,
	apiKey string,
	logger *zap.SugaredLogger,
	options ...Option,
) *Server {
	s := &Server{
		advisor:  service,
		apiKey:   apiKey,
		validate: validator.New(),
		logger:   logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Server) RegisterRoutes(router *mux.Router) {
	router.Use(s.withRequestID)

	var ask http.Handler = s.HandleAuthentication(s.HandleAsk)
	if s.askRateLimit > 0 {
		ask = httprate.LimitByIP(s.askRateLimit, time.Minute)(ask)
	}
	router.Handle("/v1/ask", ask).Methods(http.MethodPost)
	router.HandleFunc("/v1/quota-status", s.HandleAuthentication(s.HandleQuotaStatus)).Methods(http.MethodGet)
	router.HandleFunc("/v1/health", s.HandleAuthentication(s.HandleHealth)).Methods(http.MethodGet)
}

func (s *Server) HandleAsk(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()
	logger := s.requestLogger(httpRequest)

	bodyBytes, err := io.ReadAll(http.MaxBytesReader(httpResponse, httpRequest.Body, maxBodyBytes))
	if err != nil {
		logger.Warnw("Failed to read request body", "error", err)
		s.handleError(httpResponse, BadRequestError{errors.New("invalid request body")})
		return
	}

	var request askRequest
	if err := json.Unmarshal(bodyBytes, &request); err != nil {
		logger.Warnw("Invalid request body", "error", err)
		s.handleError(httpResponse, BadRequestError{errors.New("invalid request body")})
		return
	}
	if err := s.validate.Struct(request); err != nil {
		logger.Warnw("Invalid request", "error", err)
		s.handleError(httpResponse, BadRequestError{fmt.Errorf("invalid request: %v", err)})
		return
	}
	if strings.TrimSpace(request.Question) == "" && strings.TrimSpace(request.Image) == "" {
		s.handleError(httpResponse, BadRequestError{errors.New("question or image is required")})
		return
	}

	ctx, cancel := context.WithTimeout(httpRequest.Context(), askTimeout)
	defer cancel()

	var img *vetai.Image
	if strings.TrimSpace(request.Image) != "" {
		img, err = image.Prepare(request.Image)
		if err != nil {
			logger.Warnw("Rejected image", "error", err)
			var invalid image.InvalidImageError
			if errors.As(err, &invalid) {
				s.handleError(httpResponse, BadRequestError{err})
				return
			}
			s.handleError(httpResponse, InternalServerError{err})
			return
		}
	}

	logger.Infow("Received question", "has_image", img != nil, "history", len(request.History))
	reply := s.advisor.Ask(ctx, request.Question, img, request.History)
	logger.Infow("Answered question",
		"model", reply.Model, "cached", reply.Cached, "fallback", reply.IsFallback, "failed", reply.Error != "")

	s.writeJSON(httpResponse, http.StatusOK, reply)
}

func (s *Server) HandleQuotaStatus(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	s.writeJSON(httpResponse, http.StatusOK, s.advisor.QuotaStatus())
}

// HandleHealth reports readiness from the quota state alone. With ?probe=true
// it also sends a minimal request to the preferred model, which spends one
// call of the daily quota.
func (s *Server) HandleHealth(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	status := s.advisor.QuotaStatus()
	response := healthResponse{Quota: status}

	if httpRequest.URL.Query().Get("probe") == "true" {
		response.Health = s.advisor.HealthCheck(httpRequest.Context())
	} else if status.QuotaExceeded {
		response.Health = advisor.Health{Message: "Daily quota exceeded"}
	} else {
		response.Health = advisor.Health{Healthy: true, Message: "Service operational"}
	}

	code := http.StatusOK
	if !response.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(httpResponse, code, response)
}

func (s *Server) HandleAuthentication(handler http.HandlerFunc) http.HandlerFunc {
	return func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		if s.apiKey == "" {
			handler(httpResponse, httpRequest)
			return
		}

		headerSplit := strings.Split(httpRequest.Header.Get("Authorization"), " ")
		if len(headerSplit) != 2 ||
			strings.ToLower(headerSplit[0]) != "bearer" ||
			headerSplit[1] != s.apiKey {
			http.Error(httpResponse, "Unauthorized", http.StatusUnauthorized)
			return
		}

		handler(httpResponse, httpRequest)
	}
}

// withRequestID tags every request with an ID, reusing the caller's one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		requestID := httpRequest.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		httpResponse.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(httpRequest.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(httpResponse, httpRequest.WithContext(ctx))
	})
}

func (s *Server) requestLogger(httpRequest *http.Request) *zap.SugaredLogger {
	if requestID, ok := httpRequest.Context().Value(requestIDKey{}).(string); ok {
		return s.logger.With("request_id", requestID)
	}
	return s.logger
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case BadRequestError:
		s.writeJSON(w, http.StatusBadRequest, advisor.Reply{Error: err.Error()})
	case InternalServerError:
		s.writeJSON(w, http.StatusInternalServerError, advisor.Reply{Error: "Internal server error"})
	default:
		s.writeJSON(w, http.StatusInternalServerError, advisor.Reply{Error: "Internal server error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Warnw("Failed to write response", "error", fmt.Errorf("status %d: %w", status, err))
	}
}
