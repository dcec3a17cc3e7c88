package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quill/api/internal/app"
	"quill/api/internal/archive"
	"quill/api/internal/config"
	"quill/api/internal/directory"
	"quill/api/internal/notify"
	"quill/api/internal/rbac"
	"quill/api/internal/schema"
	"quill/api/internal/search"
	"quill/api/internal/store"
)

// kinds is the content model this deployment serves.
var kinds = []schema.Kind{
	{
		Name:    "articles",
		HasSlug: true,
		Permissions: schema.Permissions{
			Read:   rbac.RoleGuest,
			Write:  rbac.RoleModerator,
			Drafts: &schema.Access{Role: rbac.RoleModerator},
		},
		Comments: &schema.CommentOptions{
			Write:  rbac.RoleRegistered,
			Verify: rbac.RoleModerator,
			Manage: rbac.RoleModerator,
		},
		Categories: &schema.CategoryOptions{
			Read:  rbac.RoleGuest,
			Write: rbac.RoleModerator,
		},
		Searchable: []string{"summary", "body"},
		Indexes: []schema.Index{
			{Name: "articles_by_author", Fields: []string{"author_id"}},
		},
	},
	{
		Name:    "pages",
		HasSlug: true,
		Permissions: schema.Permissions{
			Read:  rbac.RoleGuest,
			Write: rbac.RoleAdmin,
		},
		Searchable: []string{"body"},
	},
	{
		Name: "notes",
		Permissions: schema.Permissions{
			Read:  rbac.RoleRegistered,
			Write: rbac.RoleRegistered,
		},
	},
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	for _, kind := range kinds {
		if err := dataStore.EnsureKindIndexes(ctx, kind.Normalize()); err != nil {
			log.Fatalf("indexes for kind %s failed: %v", kind.Name, err)
		}
	}

	var cache directory.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := directory.NewRedisCache(cfg.RedisURL, cfg.UserCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}
	users := directory.New(dataStore, cache)

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatalf("failed to create archive dir: %v", err)
	}
	archiveService := archive.New(cfg.ArchiveDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, kinds)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.Reindex(ctx, kinds)

	notifier := notify.NewService(notify.Config{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		FromName:   cfg.SMTPFromName,
		Moderators: cfg.SMTPModerators,
	})

	service := app.New(cfg, dataStore, users, kinds).
		WithSearch(searchService).
		WithArchive(archiveService).
		WithNotifier(notifier)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Quill API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
