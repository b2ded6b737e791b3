// Package trackerapi exposes the tracker service over HTTP for the dashboard
// frontend.
package trackerapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/gonka-top/tracker/internal/config"
	"github.com/gonka-top/tracker/internal/tracker"
)

// ServiceInterface is the tracker surface consumed by the HTTP layer.
type ServiceInterface interface {
	GetCurrentInference(ctx context.Context, reload bool) (*tracker.CurrentInferenceResponse, error)
	GetCurrentModels(ctx context.Context) (*tracker.ModelsResponse, error)
	GetTimeline(ctx context.Context) (*tracker.TimelineResponse, error)
	GetParticipantDetails(ctx context.Context, participantID string, epochID *int64) (*tracker.ParticipantDetails, error)
	GetParticipantInferences(ctx context.Context, participantID string, epochID *int64) (*tracker.ParticipantInferences, error)
}

type Server struct {
	app     *fiber.App
	cfg     *config.ServerEnvConfig
	service ServiceInterface
}

func NewServer(cfg *config.ServerEnvConfig, service ServiceInterface) *Server {
	app := fiber.New(fiber.Config{
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
		BodyLimit:   cfg.BodySizeLimit,
	})

	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(corsMiddleware(cfg.CorsOrigins))

	s := &Server{app: app, cfg: cfg, service: service}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	v1 := app.Group("/v1")
	v1.Get("/hello", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "hello"})
	})
	v1.Get("/inference/current", s.handleCurrentInference)
	v1.Get("/models/current", s.handleCurrentModels)
	v1.Get("/timeline", s.handleTimeline)
	v1.Get("/inference/epochs/:epochId", notImplemented)
	v1.Get("/models/epochs/:epochId", notImplemented)
	v1.Get("/participants/:participantId", s.handleParticipantDetails)
	v1.Get("/participants/:participantId/inferences", s.handleParticipantInferences)

	return s
}

func corsMiddleware(origins []string) fiber.Handler {
	allowOrigins := strings.Join(origins, ",")
	// Credentials cannot be combined with a wildcard origin.
	allowCredentials := allowOrigins != "*"
	return cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowCredentials: allowCredentials,
	})
}

func notImplemented(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "Not implemented yet"})
}

// epochIDQuery reads the optional epoch_id query parameter; nil means the
// caller wants the latest epoch.
func epochIDQuery(c *fiber.Ctx) *int64 {
	raw := c.Query("epoch_id")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Str("epoch_id", raw).Msg("invalid epoch_id query value, using latest")
		return nil
	}
	return &id
}

func (s *Server) handleCurrentInference(c *fiber.Ctx) error {
	reload := c.Query("reload") == "true"
	data, err := s.service.GetCurrentInference(c.UserContext(), reload)
	if err != nil {
		return serverError(c, "Failed to fetch current epoch stats", err)
	}
	return c.JSON(data)
}

func (s *Server) handleCurrentModels(c *fiber.Ctx) error {
	data, err := s.service.GetCurrentModels(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch current models", err)
	}
	return c.JSON(data)
}

func (s *Server) handleTimeline(c *fiber.Ctx) error {
	data, err := s.service.GetTimeline(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch timeline", err)
	}
	return c.JSON(data)
}

func (s *Server) handleParticipantDetails(c *fiber.Ctx) error {
	participantID := c.Params("participantId")
	data, err := s.service.GetParticipantDetails(c.UserContext(), participantID, epochIDQuery(c))
	if err != nil {
		if errors.Is(err, tracker.ErrParticipantNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return serverError(c, "Failed to fetch participant details", err)
	}
	return c.JSON(data)
}

func (s *Server) handleParticipantInferences(c *fiber.Ctx) error {
	participantID := c.Params("participantId")
	data, err := s.service.GetParticipantInferences(c.UserContext(), participantID, epochIDQuery(c))
	if err != nil {
		return serverError(c, "Failed to fetch participant inferences", err)
	}
	return c.JSON(data)
}

func serverError(c *fiber.Ctx, view string, err error) error {
	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fmt.Sprintf("%s: %s", view, err.Error()),
	})
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		if err := s.app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("server listen failed")
		}
	}()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
