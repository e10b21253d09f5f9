package router

import (
	"log/slog"
	"net/http"

	"github.com/cangre-pos/api/internal/config"
	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/handler"
	mw "github.com/cangre-pos/api/internal/middleware"
	"github.com/cangre-pos/api/internal/report"
	"github.com/cangre-pos/api/internal/service"
	"github.com/cangre-pos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // SvelteKit dev server
			"http://localhost:3000",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route for the kitchen display (authenticates via query param)
	r.Get("/ws/kitchen", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services that run their own transactions get a store factory so each
	// transaction sees its own queries.
	orderService := service.NewOrderService(pool,
		func(db database.DBTX) service.OrderStore {
			return database.New(db)
		},
		hub, cfg.LockTimeout, cfg.CutoffHour)
	lotService := service.NewLotService(pool,
		func(db database.DBTX) service.ProductionStore {
			return database.New(db)
		},
		cfg.LockTimeout)
	closureService := service.NewClosureService(queries, cfg.CutoffHour)
	recipeResolver := service.NewRecipeResolver(queries)
	reportBuilder := report.NewBuilder(queries, cfg.CutoffHour)

	r.Route("/api", func(r chi.Router) {
		// Auth routes (public)
		authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
		authHandler.RegisterRoutes(r)

		// The menu is public: customer-facing displays read it without a login.
		menuHandler := handler.NewMenuHandler(queries)
		menuHandler.RegisterRoutes(r)

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))

			authHandler.RegisterProtectedRoutes(r)

			// Sales floor: orders, closures and cashier sessions
			orderHandler := handler.NewOrderHandler(orderService, queries)
			r.Route("/orders", orderHandler.RegisterRoutes)

			closureHandler := handler.NewClosureHandler(closureService)
			closureHandler.RegisterRoutes(r)

			reportsHandler := handler.NewReportsHandler(reportBuilder, cfg.CutoffHour)
			r.Route("/reports", reportsHandler.RegisterRoutes)

			// Back office (admin only)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleAdmin))

				closureHandler.RegisterAdminRoutes(r)

				ingredientHandler := handler.NewIngredientHandler(queries)
				r.Route("/ingredients", ingredientHandler.RegisterRoutes)

				productHandler := handler.NewProductHandler(queries, pool,
					func(db database.DBTX) handler.ProductStore {
						return database.New(db)
					})
				r.Route("/products", productHandler.RegisterRoutes)

				preparationHandler := handler.NewPreparationHandler(queries, lotService, recipeResolver, pool,
					func(db database.DBTX) handler.PreparationStore {
						return database.New(db)
					})
				r.Route("/preparations", preparationHandler.RegisterRoutes)

				categoryHandler := handler.NewCategoryHandler(queries)
				r.Route("/categories", categoryHandler.RegisterRoutes)

				sauceHandler := handler.NewSauceHandler(queries)
				r.Route("/sauces", sauceHandler.RegisterRoutes)

				userHandler := handler.NewUserHandler(queries)
				r.Route("/users", userHandler.RegisterRoutes)
			})
		})
	})

	slog.Info("router initialized")
	return r
}
