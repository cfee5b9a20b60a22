package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DetectorRetinaFace = "retinaface"
	DetectorSSD        = "ssd"

	StoreGorm     = "gorm"
	StorePostgres = "postgres"
)

type Config struct {
	Debug bool

	// database
	DatabaseDriver string `validate:"oneof=sqlite mysql"`
	DatabaseDSN    string `validate:"required"`

	// embedding persistence; gorm shares the main database
	EmbeddingStore    string `validate:"oneof=gorm postgres"`
	EmbeddingStoreURL string `validate:"required_if=EmbeddingStore postgres"`

	// models
	FaceDetector             string  `validate:"oneof=retinaface ssd"`
	FaceDetectorModelPath    string  `validate:"required"`
	FaceDetectorConfigPath   string  `validate:"required_if=FaceDetector ssd"`
	FaceRecognitionModelPath string  `validate:"required"`
	FaceRecognitionModel     string  `validate:"oneof=arcface facenet"`
	EmbeddingDimension       int     `validate:"gt=0"`
	DetectorThreshold        float32 `validate:"gt=0,lte=1"`
	ModelPoolSize            int     `validate:"gt=0"`

	// matching
	MatchThreshold             float64 `validate:"gt=0,lte=2"`
	MaxConsecutiveReadFailures int     `validate:"gt=0"`

	// extraction gates
	MinImageWidth         int     `validate:"gt=0"`
	MinImageHeight        int     `validate:"gt=0"`
	MinDetectorConfidence float32 `validate:"gte=0,lte=1"`
	FaceCropSize          int     `validate:"gte=0"`
	ExtractWorkers        int     `validate:"gt=0"`

	// enrollment
	MinEnrollmentFaces   int `validate:"gt=0"`
	EnrollmentQueueSize  int `validate:"gt=0"`
	NumEnrollmentWorkers int `validate:"gt=0"`
	MaxUploadSizeMB      int `validate:"gt=0"`

	// http
	Port               string `validate:"required"`
	CORSAllowedOrigins []string
}

// ErrThresholdMissing is returned when MATCH_THRESHOLD is not configured.
// There is no safe default; it depends on the recognition model.
var ErrThresholdMissing = errors.New("MATCH_THRESHOLD is required")

var validate = validator.New()

// New returns a viper instance with every default registered. Callers may
// bind flags into it before LoadConfig.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", false)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "attendance.db")
	v.SetDefault("embedding_store", StoreGorm)
	v.SetDefault("embedding_store_url", "")
	v.SetDefault("face_detector", DetectorRetinaFace)
	v.SetDefault("face_detector_model_path", "./models/retinaface_resnet50.onnx")
	v.SetDefault("face_detector_config_path", "")
	v.SetDefault("face_detector_threshold", 0.5)
	v.SetDefault("face_recognition_model_path", "./models/arcface_r100.onnx")
	v.SetDefault("face_recognition_model", "arcface")
	v.SetDefault("embedding_dimension", 512)
	v.SetDefault("model_pool_size", 2)
	v.SetDefault("max_consecutive_read_failures", 5)
	v.SetDefault("min_image_width", 100)
	v.SetDefault("min_image_height", 100)
	v.SetDefault("min_detector_confidence", 0.6)
	v.SetDefault("face_crop_size", 0)
	v.SetDefault("extract_workers", runtime.NumCPU())
	v.SetDefault("min_enrollment_faces", 10)
	v.SetDefault("enrollment_queue_size", 50)
	v.SetDefault("num_enrollment_workers", 2)
	v.SetDefault("max_upload_size_mb", 64)
	v.SetDefault("port", "8080")
	v.SetDefault("cors_allowed_origins", "http://localhost:5173")

	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads a .env file into the process environment. A missing file
// is not an error.
func LoadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: failed to load %s: %v", path, err)
			return
		}
		log.Printf("Info: No %s file found", path)
	}
}

// LoadConfig resolves and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (Config, error) {
	if !v.IsSet("match_threshold") || v.GetString("match_threshold") == "" {
		return Config{}, ErrThresholdMissing
	}

	cfg := Config{
		Debug:                      v.GetBool("debug"),
		DatabaseDriver:             strings.ToLower(v.GetString("database_driver")),
		DatabaseDSN:                v.GetString("database_dsn"),
		EmbeddingStore:             strings.ToLower(v.GetString("embedding_store")),
		EmbeddingStoreURL:          v.GetString("embedding_store_url"),
		FaceDetector:               strings.ToLower(v.GetString("face_detector")),
		FaceDetectorModelPath:      v.GetString("face_detector_model_path"),
		FaceDetectorConfigPath:     v.GetString("face_detector_config_path"),
		FaceRecognitionModelPath:   v.GetString("face_recognition_model_path"),
		FaceRecognitionModel:       strings.ToLower(v.GetString("face_recognition_model")),
		EmbeddingDimension:         v.GetInt("embedding_dimension"),
		DetectorThreshold:          float32(v.GetFloat64("face_detector_threshold")),
		ModelPoolSize:              v.GetInt("model_pool_size"),
		MatchThreshold:             v.GetFloat64("match_threshold"),
		MaxConsecutiveReadFailures: v.GetInt("max_consecutive_read_failures"),
		MinImageWidth:              v.GetInt("min_image_width"),
		MinImageHeight:             v.GetInt("min_image_height"),
		MinDetectorConfidence:      float32(v.GetFloat64("min_detector_confidence")),
		FaceCropSize:               v.GetInt("face_crop_size"),
		ExtractWorkers:             v.GetInt("extract_workers"),
		MinEnrollmentFaces:         v.GetInt("min_enrollment_faces"),
		EnrollmentQueueSize:        v.GetInt("enrollment_queue_size"),
		NumEnrollmentWorkers:       v.GetInt("num_enrollment_workers"),
		MaxUploadSizeMB:            v.GetInt("max_upload_size_mb"),
		Port:                       v.GetString("port"),
		CORSAllowedOrigins:         splitList(v.GetString("cors_allowed_origins")),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
