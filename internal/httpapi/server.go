// Package httpapi exposes the daemon's chat state over HTTP and websocket
// for local clients.
package httpapi

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/outbox"
	"github.com/pigeon-chat/pigeon/internal/status"
	"github.com/pigeon-chat/pigeon/internal/sync"
)

// Server is the daemon's HTTP surface.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	be     backend.Facade
	sync   *sync.Synchronizer
	sender *outbox.Sender
	bus    *bus.Bus
	state  *status.Machine
	logger *zap.Logger
}

// New builds the server and registers all routes.
func New(cfg *config.Config, be backend.Facade, s *sync.Synchronizer, sender *outbox.Sender, b *bus.Bus, state *status.Machine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             32 * 1024 * 1024,
		}),
		cfg:    cfg,
		be:     be,
		sync:   s,
		sender: sender,
		bus:    b,
		state:  state,
		logger: logger,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	app := s.app

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/auth/token", s.MintToken)

	secured := api.Group("", AuthRequired(s.cfg.Auth.Secret))
	secured.Get("/status", s.Status)

	secured.Get("/chats", s.ListChats)
	secured.Post("/chats/direct", s.CreateDirectChat)
	secured.Post("/chats/group", s.CreateGroupChat)
	secured.Get("/chats/:id", s.GetChat)
	secured.Get("/chats/:id/messages", s.GetMessages)
	secured.Post("/chats/:id/focus", s.FocusChat)
	secured.Post("/chats/blur", s.BlurChat)
	secured.Post("/chats/:id/messages", s.SendMessage)

	secured.Get("/labels", s.ListLabels)
	secured.Post("/labels", s.CreateLabel)
	secured.Post("/chats/:id/labels", s.AssignLabel)
	secured.Delete("/chats/:id/labels/:labelID", s.UnassignLabel)

	secured.Post("/upload", s.Upload)

	api.Use("/ws", s.WebSocketAuth)
	api.Get("/ws", websocket.New(s.HandleWebSocket))
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
