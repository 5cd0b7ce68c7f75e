package startup

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casbin/casbin"
	"github.com/go-redis/redis"
	"github.com/gorilla/mux"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"swap_service/casbinAuthorization"
	"swap_service/clients"
	"swap_service/domain"
	"swap_service/handlers"
	application "swap_service/service"
	"swap_service/startup/config"
	"swap_service/store"
)

type Server struct {
	config *config.Config
}

var Logger = logrus.New()

const (
	LogFilePath = "/app/logs/swap.log"
)

type CustomFormatter struct{}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Data["id"] = generateUniqueID()

	msg := fmt.Sprintf("[%s] [%s] [%s] %s\n",
		entry.Time.Format("2006-01-02T15:04:05Z07:00"),
		entry.Level,
		entry.Data["id"],
		entry.Message,
	)

	return []byte(msg), nil
}

func generateUniqueID() string {
	return fmt.Sprintf("ID-%d", time.Now().UnixNano())
}

func initLogger() {
	writer, err := rotatelogs.New(
		LogFilePath+"_%Y%m%d%H%M",
		rotatelogs.WithRotationTime(3*time.Minute),
	)
	if err != nil {
		Logger.Fatalf("Failed to create rotatelogs hook: %v", err)
	}
	Logger.SetOutput(writer)

	Logger.SetFormatter(&CustomFormatter{})
}

func NewServer(config *config.Config) *Server {
	return &Server{
		config: config,
	}
}

func (server *Server) Start() {

	initLogger()

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     10,
		},
	}

	mongoClient := server.initMongoClient(httpClient)
	defer func(mongoClient *mongo.Client, ctx context.Context) {
		err := mongoClient.Disconnect(ctx)
		if err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}(mongoClient, context.Background())

	redisClient := server.initRedisClient()
	neo4jDriver := server.initNeo4jDriver()
	defer func(driver *neo4j.DriverWithContext, ctx context.Context) {
		if err := (*driver).Close(ctx); err != nil {
			log.Printf("Error closing Neo4j driver: %v", err)
		}
	}(neo4jDriver, context.Background())

	ctx := context.Background()
	exp, err := newExporter(server.config.JaegerAddress)
	if err != nil {
		log.Fatalf("Failed to Initialize Exporter: %v", err)
	}

	tp := newTraceProvider(exp)
	defer func() { _ = tp.Shutdown(ctx) }()
	otel.SetTracerProvider(tp)
	tracer := tp.Tracer("swap_service")
	otel.SetTextMapPropagator(propagation.TraceContext{})

	bookingStore := server.initBookingStore(mongoClient, tracer)
	swapStore := server.initSwapStore(mongoClient, tracer)
	targetingStore := server.initTargetingStore(neo4jDriver, tracer)
	compatibilityCache := server.initCompatibilityCache(redisClient, tracer)

	notarizationClient := clients.NewNotarizationClient(server.config.NotarizationEndpoint, server.config.NotarizationMaxAttempts, Logger)
	transferClient := clients.NewTransferClient(server.config.TransferEndpoint, Logger)
	notificationClient := clients.NewNotificationClient(server.config.NotificationEndpoint, Logger)

	lockService := application.NewLockService(bookingStore, tracer, Logger)
	compatibilityService := application.NewCompatibilityService(tracer)
	eligibilityService := application.NewEligibilityService(bookingStore, swapStore, compatibilityService, server.config.CompatibilityThreshold, tracer, Logger)
	swapService := application.NewSwapService(swapStore, bookingStore, targetingStore, lockService, eligibilityService, notarizationClient, transferClient, notificationClient, tracer, Logger)
	targetingService := application.NewTargetingService(targetingStore, tracer, Logger)
	expirationService := application.NewExpirationService(swapStore, swapService, server.config.SweeperInterval, tracer, Logger)

	expirationService.Start()
	defer expirationService.Stop()

	swapHandler := handlers.NewSwapHandler(swapService, compatibilityService, targetingService, expirationService, bookingStore, compatibilityCache, tracer)

	server.start(swapHandler)
}

func (server *Server) initMongoClient(httpClient *http.Client) *mongo.Client {
	client, err := store.GetClientWithHTTPConfig(server.config.SwapDBHost, server.config.SwapDBPort, httpClient)
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func (server *Server) initRedisClient() *redis.Client {
	client, err := store.GetRedisClient(server.config.CacheHost, server.config.CachePort)
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func (server *Server) initNeo4jDriver() *neo4j.DriverWithContext {
	driver, err := store.GetNeo4jDriver(server.config.TargetingDBHost, server.config.TargetingDBPort, server.config.TargetingDBUser, server.config.TargetingDBPass)
	if err != nil {
		log.Fatal(err)
	}
	return driver
}

func (server *Server) initBookingStore(client *mongo.Client, tracer trace.Tracer) domain.BookingStore {
	return store.NewBookingMongoDBStore(client, tracer)
}

func (server *Server) initSwapStore(client *mongo.Client, tracer trace.Tracer) domain.SwapStore {
	return store.NewSwapMongoDBStore(client, tracer)
}

func (server *Server) initTargetingStore(driver *neo4j.DriverWithContext, tracer trace.Tracer) domain.TargetingStore {
	return store.NewTargetingNeo4JStore(driver, tracer)
}

func (server *Server) initCompatibilityCache(client *redis.Client, tracer trace.Tracer) domain.CompatibilityCache {
	return store.NewCompatibilityRedisCache(client, tracer)
}

func (server *Server) start(swapHandler *handlers.SwapHandler) {
	router := mux.NewRouter()
	router.Use(MiddlewareContentTypeSet)
	swapHandler.Init(router)

	enforcer, err := casbin.NewEnforcerSafe("./rbac_model.conf", "./policy.csv")
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", server.config.Port),
		Handler: casbinAuthorization.CasbinMiddleware(enforcer, Logger)(router),
	}

	wait := time.Second * 15
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()

	c := make(chan os.Signal, 1)

	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	<-c

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Error Shutting Down Server %s", err)
	}
	log.Println("Server Gracefully Stopped")
}

func newExporter(address string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(address)))
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func newTraceProvider(exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("swap_service"),
		),
	)

	if err != nil {
		panic(err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	)
}

func MiddlewareContentTypeSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, h *http.Request) {
		rw.Header().Add("Content-Type", "application/json")
		rw.Header().Set("X-Content-Type-Options", "nosniff")
		rw.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(rw, h)
	})
}
