package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"
	config "github.com/scrapbook/monthbook/configs"
	"github.com/scrapbook/monthbook/internal/api/handlers"
	"github.com/scrapbook/monthbook/internal/api/middleware"
	"github.com/scrapbook/monthbook/internal/cache"
	job "github.com/scrapbook/monthbook/internal/jobs"
	"github.com/scrapbook/monthbook/internal/objectstore"
	"github.com/scrapbook/monthbook/internal/queue"
	"github.com/scrapbook/monthbook/internal/repository"
	"github.com/scrapbook/monthbook/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	var objects objectstore.Client
	if cfg.S3.BucketName != "" {
		s3Client, err := objectstore.NewS3Client(context.Background(), cfg.S3)
		if err != nil {
			log.Fatalf("Failed to create object store client: %v", err)
		}
		objects = s3Client
	} else if cfg.UseS3Posts {
		log.Fatal("USE_S3_POSTS is set but AWS_S3_BUCKET_NAME is empty")
	}

	var asynqClient *asynq.Client
	var rebuilds repository.IndexRebuildEnqueuer
	if cfg.UseS3Posts && cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()
		rebuilds = queue.NewEnqueuer(asynqClient)
	}

	tags := cache.New(cache.NewRedisClient(cfg.RedisURI))
	store := repository.New(cfg, objects, rebuilds)

	authService := service.NewAuthService(*cfg)
	postService := service.NewPostService(store, tags)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	requireAuth := authMiddleware.RequireAuth()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    service.MaxUploadSize,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Post("/api/auth", auth.Login)

	post := handlers.NewPostHandler(postService)
	api := app.Group("/api")
	api.Get("/posts", post.ListPublished)
	api.Get("/posts/admin", requireAuth, post.AdminList)
	api.Get("/posts/:id", post.GetPost)
	api.Post("/posts", requireAuth, post.CreatePost)
	api.Patch("/posts/:id", requireAuth, post.UpdatePost)
	api.Delete("/posts/:id", requireAuth, post.DeletePost)

	if objects != nil {
		mediaService := service.NewMediaService(objects)
		upload := handlers.NewUploadHandler(mediaService)
		api.Post("/upload-url", requireAuth, upload.CreateUploadURL)
		api.Post("/extract-metadata", requireAuth, upload.ExtractMetadata)
	}

	if s3Store, ok := store.(*repository.S3Store); ok {
		reconcileJob := job.NewIndexReconcileJob(s3Store)

		c := cron.New()
		c.AddFunc("@every 01h00m00s", reconcileJob.Reconcile)
		c.Start()

		if cfg.RedisURI != "" {
			queueW := queue.NewQueue(s3Store)

			go func() {
				server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
					Concurrency: 10,
				})

				mux := asynq.NewServeMux()
				mux.HandleFunc(queue.TaskTypeIndexRebuild, queueW.HandleIndexRebuildTask)

				log.Println("Starting the Asynq server...")
				if err := server.Run(mux); err != nil {
					log.Fatalf("Could not start Asynq server: %v", err)
				}
			}()
		}
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app)
}

func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	log.Println("Server shutdown complete.")
}
