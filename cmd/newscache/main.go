package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"newscache/internal/cache"
	"newscache/internal/mirror"
	web "newscache/internal/server"
	"newscache/internal/store"
	"newscache/internal/upstream"
	"newscache/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger

	redisAddr     string
	badgerPath    string
	port          string
	interval      time.Duration
	minioEndpoint string
	minioBucket   string
	minioSSL      bool
)

var rootCmd = &cobra.Command{
	Use:   "newscache",
	Short: "newscache - TTL cache and asset mirror in front of the news CMS",
}

// deps bundles everything the commands share.
type deps struct {
	records  *store.RedisRecordStore
	objects  store.ObjectStore
	badger   *store.BadgerObjectStore // nil when MinIO is configured
	fetcher  *upstream.Client
	mirror   *mirror.Mirror
	coord    *cache.Coordinator
	reconcil *worker.Reconciler
}

func (d *deps) close() {
	if d.records != nil {
		d.records.Close()
	}
	if d.badger != nil {
		d.badger.Close()
	}
}

func buildDeps() (*deps, error) {
	records, err := store.NewRedisRecordStore(redisAddr)
	if err != nil {
		return nil, err
	}

	var objects store.ObjectStore
	var badgerStore *store.BadgerObjectStore
	if minioEndpoint != "" {
		objects, err = store.NewMinioObjectStore(store.MinioConfig{
			Endpoint:  minioEndpoint,
			Bucket:    minioBucket,
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    minioSSL,
		})
	} else {
		badgerStore, err = store.NewBadgerObjectStore(badgerPath)
		objects = badgerStore
	}
	if err != nil {
		records.Close()
		return nil, err
	}

	fetcher, err := upstream.NewClient(upstream.Config{
		APIKey:      os.Getenv("CONTENTSTACK_API_KEY"),
		AccessToken: os.Getenv("CONTENTSTACK_ACCESS_TOKEN"),
	}, logger)
	if err != nil {
		records.Close()
		if badgerStore != nil {
			badgerStore.Close()
		}
		return nil, err
	}

	m := mirror.NewMirror(objects, records, logger)
	return &deps{
		records:  records,
		objects:  objects,
		badger:   badgerStore,
		fetcher:  fetcher,
		mirror:   m,
		coord:    cache.NewCoordinator(records, fetcher, m, logger),
		reconcil: worker.NewReconciler(records, fetcher, m, logger),
	}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cache server and the reconciliation loop",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			logger.Info("Shutting down...")
			cancel()
		}()

		d, err := buildDeps()
		if err != nil {
			logger.Fatal("Failed to init dependencies", zap.Error(err))
		}
		defer d.close()

		go d.reconcil.Start(ctx, interval)
		if d.badger != nil {
			go d.badger.RunGC(ctx, 5*time.Minute, logger)
		}

		srv := web.NewServer(d.coord, d.objects, d.reconcil, logger)
		go func() {
			if err := srv.Start(port); err != nil && err != http.ErrServerClosed {
				logger.Error("Server stopped", zap.Error(err))
				cancel()
			}
		}()

		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
		logger.Info("Goodbye!")
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass and print the summary",
	Run: func(cmd *cobra.Command, args []string) {
		d, err := buildDeps()
		if err != nil {
			logger.Fatal("Failed to init dependencies", zap.Error(err))
		}
		defer d.close()

		sum, err := d.reconcil.Run(context.Background())
		if err != nil {
			logger.Fatal("Reconciliation failed", zap.Error(err))
		}

		fmt.Printf("refreshed=%d failed=%d expired_removed=%d\n",
			sum.Refreshed, sum.Failed, sum.ExpiredRemoved)
		for _, f := range sum.Failures {
			fmt.Printf("  failed %s: %v\n", f.Identifier, f.Err)
		}
	},
}

var getCmd = &cobra.Command{
	Use:   "get [identifier]",
	Short: "Resolve one article through the cache",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		if !strings.HasPrefix(id, "/") {
			id = "/" + id
		}

		d, err := buildDeps()
		if err != nil {
			logger.Fatal("Failed to init dependencies", zap.Error(err))
		}
		defer d.close()

		article, freshness, err := d.coord.Resolve(context.Background(), id)
		if err != nil && article == nil {
			logger.Fatal("Failed to resolve article", zap.Error(err))
		}

		fmt.Printf("%s [%s] %s\n", article.UID, freshness, article.Title)
	},
}

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB object store directory")
	rootCmd.PersistentFlags().StringVar(&minioEndpoint, "minio-endpoint", "", "MinIO endpoint; when set, overrides the Badger object store")
	rootCmd.PersistentFlags().StringVar(&minioBucket, "minio-bucket", "newscache", "MinIO bucket for mirrored images")
	rootCmd.PersistentFlags().BoolVar(&minioSSL, "minio-ssl", true, "Use HTTPS for MinIO")
	rootCmd.PersistentFlags().StringVar(&port, "port", "8080", "HTTP listen port")
	rootCmd.PersistentFlags().DurationVar(&interval, "interval", 30*time.Minute, "Reconciliation interval")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(getCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
