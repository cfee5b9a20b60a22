package cmd

import (
	"context"
	"fmt"
	"io"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/faceattendance/config"
	"github.com/camden-git/faceattendance/database"
	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/opencv"
	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/services"
)

// app holds the resources shared by every subcommand.
type app struct {
	cfg     config.Config
	db      *gorm.DB
	store   repository.EmbeddingStore
	closers []func()
}

// openApp loads configuration, opens the database and selects the
// embedding store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(v)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := database.InitGormDB(cfg.DatabaseDriver, cfg.DatabaseDSN, logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a := &app{cfg: cfg, db: db}
	a.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	switch cfg.EmbeddingStore {
	case config.StorePostgres:
		pg, err := repository.NewPostgresEmbeddingStore(ctx, cfg.EmbeddingStoreURL, cfg.FaceRecognitionModel)
		if err != nil {
			a.close()
			return nil, err
		}
		a.onClose(pg.Close)
		a.store = pg
		log.Printf("Using Postgres embedding store")
	default:
		a.store = repository.NewFaceEmbeddingRepository(db, cfg.FaceRecognitionModel)
	}

	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadModels builds the detector and embedder pools. They are released by
// close.
func (a *app) loadModels() (media.Models, error) {
	mc := opencv.ModelConfig{
		RecognitionPath:   a.cfg.FaceRecognitionModelPath,
		RecognitionName:   a.cfg.FaceRecognitionModel,
		DetectorThreshold: a.cfg.DetectorThreshold,
		PoolSize:          a.cfg.ModelPoolSize,
	}
	switch a.cfg.FaceDetector {
	case config.DetectorSSD:
		mc.SSDConfigPath = a.cfg.FaceDetectorConfigPath
		mc.SSDModelPath = a.cfg.FaceDetectorModelPath
	default:
		mc.RetinaFacePath = a.cfg.FaceDetectorModelPath
	}

	models, closer, err := opencv.LoadModels(mc)
	if err != nil {
		return media.Models{}, err
	}
	a.onClose(func() { closeLogged("models", closer) })
	return models, nil
}

func (a *app) extractor(m media.Models) *media.FaceExtractor {
	return media.NewFaceExtractor(m.Detector, media.ExtractorOptions{
		MinWidth:      a.cfg.MinImageWidth,
		MinHeight:     a.cfg.MinImageHeight,
		MinConfidence: a.cfg.MinDetectorConfidence,
		CropSize:      a.cfg.FaceCropSize,
		Workers:       a.cfg.ExtractWorkers,
	})
}

func (a *app) encoder(m media.Models) *media.EmbeddingEncoder {
	return media.NewEmbeddingEncoder(m.Embedder, a.cfg.EmbeddingDimension)
}

func (a *app) enrollmentPipeline(m media.Models) *services.EnrollmentPipeline {
	return services.NewEnrollmentPipeline(a.extractor(m), a.encoder(m), a.store, a.cfg.MinEnrollmentFaces)
}

// matcherFactory returns a constructor for single-use live matchers backed
// by OpenCV cameras.
func (a *app) matcherFactory(m media.Models) services.MatcherFactory {
	extractor, encoder := a.extractor(m), a.encoder(m)
	cfg := services.MatcherConfig{
		Threshold:                  a.cfg.MatchThreshold,
		MaxConsecutiveReadFailures: a.cfg.MaxConsecutiveReadFailures,
		ReadRetryDelay:             services.DefaultReadRetryDelay,
	}
	return func() *services.LiveMatcher {
		return services.NewLiveMatcher(extractor, encoder, a.store, openCamera, cfg)
	}
}

func openCamera(source string) (services.FrameSource, error) {
	cam, err := opencv.OpenCamera(source)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func closeLogged(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("Warning: failed to close %s: %v", what, err)
	}
}
