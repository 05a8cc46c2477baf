package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hitoshi/farmchef/internal/admin"
	"github.com/hitoshi/farmchef/internal/auth"
	"github.com/hitoshi/farmchef/internal/config"
	"github.com/hitoshi/farmchef/internal/confirm"
	"github.com/hitoshi/farmchef/internal/database"
	"github.com/hitoshi/farmchef/internal/feed"
	"github.com/hitoshi/farmchef/internal/handler"
	"github.com/hitoshi/farmchef/internal/logger"
	"github.com/hitoshi/farmchef/internal/metrics"
	"github.com/hitoshi/farmchef/internal/middleware"
	"github.com/hitoshi/farmchef/internal/post"
	"github.com/hitoshi/farmchef/internal/profile"
	"github.com/hitoshi/farmchef/internal/repository"
	"github.com/hitoshi/farmchef/internal/security"
	"github.com/hitoshi/farmchef/internal/seed"
	"github.com/hitoshi/farmchef/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	root.SetOut(w)
	return root.Execute()
}

// runWithConfig は設定を読み込んでからfnを実行する。
func runWithConfig(w io.Writer, cmd Command, fn func(cfg *config.Config) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return fn(cfg)
}

// stores はストアドライバーに応じて構築したリポジトリと後始末を保持する。
type stores struct {
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	health   handler.HealthChecker
	closers  []func()
}

// Close は開いた接続を逆順に閉じる。
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores はSTORE_DRIVERに応じてPostgreSQLまたはMongoDBのリポジトリを構築する。
// metricsが指定された場合はリポジトリを計測用のデコレーターで包む。
func openStores(ctx context.Context, cfg *config.Config, m metrics.MetricsCollector) (*stores, error) {
	st := &stores{}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Error("failed to disconnect mongodb", slog.String("error", err.Error()))
			}
		})
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to ensure mongodb indexes: %w", err)
		}

		st.profiles = repository.NewMongoProfileRepo(db)
		st.posts = repository.NewMongoPostRepo(db)
		st.health = handler.HealthCheckerFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { db.Close() })
		if err := db.PingContext(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		st.profiles = repository.NewPostgresProfileRepo(db)
		st.posts = repository.NewPostgresPostRepo(db)
		st.health = db
		slog.Info("database connection established")
	}

	if m != nil {
		st.profiles = repository.NewInstrumentedProfileRepo(st.profiles, m)
		st.posts = repository.NewInstrumentedPostRepo(st.posts, m)
	}
	return st, nil
}

// services はドメインサービスをまとめたもの。
type services struct {
	profiles *profile.Service
	posts    *post.Service
	feed     *feed.Assembler
	admin    *admin.Service
}

// newServices はリポジトリからドメインサービスを構築する。metricsはnilでもよい。
func newServices(cfg *config.Config, st *stores, uploader storage.Uploader, m metrics.MetricsCollector) *services {
	sanitizer := security.NewContentSanitizer()
	validator := security.NewLinkValidator()

	profiles := profile.NewService(st.profiles, st.posts, sanitizer, validator, m, cfg.ProfilePostsLimit)
	posts := post.NewService(st.posts, uploader, sanitizer, validator, cfg.FeedMaxLimit)
	assembler := feed.NewAssembler(posts, st.profiles, m)

	return &services{
		profiles: profiles,
		posts:    posts,
		feed:     assembler,
		admin:    admin.NewService(profiles, posts, assembler),
	}
}

// newUploader はCLOUDINARY_URLが設定されていればCloudinaryのアップローダーを返す。
// 未設定の場合は画像アップロードを無効にする。
func newUploader(cfg *config.Config) (storage.Uploader, error) {
	if cfg.CloudinaryURL == "" {
		slog.Warn("CLOUDINARY_URL is not set; image uploads are disabled")
		return storage.DisabledUploader{}, nil
	}
	u, err := storage.NewCloudinaryUploader(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// rateLimiterConfig は設定値（req/min）からレート制限の設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.PostCreateRate = middleware.PerMinute(cfg.RateLimitPostCreate)
	rl.PostCreateBurst = cfg.RateLimitPostCreate
	return rl
}

// runServe はAPIサーバーモードで起動する。
// ストアとRedisに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 2. ストア接続
	st, err := openStores(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer st.Close()

	// 3. Redis（セッションと確認トークン）
	rdb, err := database.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	slog.Info("redis connection established")

	sessionRepo := repository.NewRedisSessionRepo(rdb)
	confirmStore := confirm.NewRedisStore(rdb, cfg.ConfirmTTL)

	// 4. ドメインサービスの初期化
	uploader, err := newUploader(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure image storage: %w", err)
	}
	svc := newServices(cfg, st, uploader, collector)

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		Capabilities:  auth.Capabilities{AdminEmail: cfg.AdminEmail},
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthCheckers: map[string]handler.HealthChecker{
			cfg.StoreDriver: st.health,
			"redis": handler.HealthCheckerFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		},
		SessionFinder: sessionRepo,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService: svc.profiles,
		PostService:    svc.posts,
		FeedService:    svc.feed,
		AdminService:   svc.admin,
		ConfirmStore:   confirmStore,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はストアのスキーマを準備する。
// PostgreSQLでは未適用マイグレーションを順番に適用し、MongoDBではインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverMongo {
		slog.Info("creating mongodb indexes", slog.String("database", cfg.MongoDatabase))
		st, err := openStores(context.Background(), cfg, nil)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		st.Close()
		slog.Info("mongodb indexes are up to date")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// seedRunner はデモデータを投入する処理を返す。
// 画像は生成しないため、アップローダーは無効のまま構築する。
func seedRunner(opts seed.Options) func(cfg *config.Config) error {
	return func(cfg *config.Config) error {
		ctx := context.Background()

		st, err := openStores(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := newServices(cfg, st, storage.DisabledUploader{}, nil)
		result, err := seed.Run(ctx, svc.profiles, svc.posts, opts)
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}

		for label, n := range result.ByLabel {
			slog.Info("seeded profiles by label", slog.String("label", label), slog.Int("count", n))
		}
		return nil
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
