package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MATTEKIT"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Processing   ProcessingConfig   `mapstructure:"processing"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	FaceMesh     FaceMeshConfig     `mapstructure:"facemesh"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	Debug        bool          `mapstructure:"debug"`
	StaticDir    string        `mapstructure:"static_dir"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
}

type ProcessingConfig struct {
	MaxConcurrent  int `mapstructure:"max_concurrent"`
	BlurKernelSize int `mapstructure:"blur_kernel_size"`
}

// SegmentationConfig 分割模型与蒙版细化参数
type SegmentationConfig struct {
	Backend      string  `mapstructure:"backend"` // dnn, grabcut
	ModelPath    string  `mapstructure:"model_path"`
	InputSize    int     `mapstructure:"input_size"`
	PoolSize     int     `mapstructure:"pool_size"`
	Threshold    float64 `mapstructure:"threshold"`
	CloseKernel  int     `mapstructure:"close_kernel"`
	FeatherSigma float64 `mapstructure:"feather_sigma"`
	KeepLargest  bool    `mapstructure:"keep_largest"`

	GrabCutIterations int `mapstructure:"grabcut_iterations"`
	GrabCutMaxSide    int `mapstructure:"grabcut_max_side"`
}

// FaceMeshConfig 人脸关键点检测参数
type FaceMeshConfig struct {
	CascadePath string  `mapstructure:"cascade_path"`
	ModelPath   string  `mapstructure:"model_path"`
	InputSize   int     `mapstructure:"input_size"`
	PoolSize    int     `mapstructure:"pool_size"`
	CropPadding float64 `mapstructure:"crop_padding"`
}

// Load 从 YAML 文件加载配置，环境变量 MATTEKIT_* 覆盖文件中的值
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用指定路径加载配置，文件缺失时仅使用默认值和环境变量
func New(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		cfg, err = unmarshal(newViper())
		if err != nil {
			return getDefaultConfig()
		}
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := getDefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)

	v.SetDefault("processing.max_concurrent", d.Processing.MaxConcurrent)
	v.SetDefault("processing.blur_kernel_size", d.Processing.BlurKernelSize)

	v.SetDefault("segmentation.backend", d.Segmentation.Backend)
	v.SetDefault("segmentation.model_path", d.Segmentation.ModelPath)
	v.SetDefault("segmentation.input_size", d.Segmentation.InputSize)
	v.SetDefault("segmentation.pool_size", d.Segmentation.PoolSize)
	v.SetDefault("segmentation.threshold", d.Segmentation.Threshold)
	v.SetDefault("segmentation.close_kernel", d.Segmentation.CloseKernel)
	v.SetDefault("segmentation.feather_sigma", d.Segmentation.FeatherSigma)
	v.SetDefault("segmentation.keep_largest", d.Segmentation.KeepLargest)
	v.SetDefault("segmentation.grabcut_iterations", d.Segmentation.GrabCutIterations)
	v.SetDefault("segmentation.grabcut_max_side", d.Segmentation.GrabCutMaxSide)

	v.SetDefault("facemesh.cascade_path", d.FaceMesh.CascadePath)
	v.SetDefault("facemesh.model_path", d.FaceMesh.ModelPath)
	v.SetDefault("facemesh.input_size", d.FaceMesh.InputSize)
	v.SetDefault("facemesh.pool_size", d.FaceMesh.PoolSize)
	v.SetDefault("facemesh.crop_padding", d.FaceMesh.CropPadding)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8000",
			Mode:         "debug",
			Debug:        false,
			StaticDir:    "./static",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      time.Hour,
		},
		Upload: UploadConfig{
			MaxSize: 20 * 1024 * 1024,
		},
		Processing: ProcessingConfig{
			MaxConcurrent:  4,
			BlurKernelSize: 15,
		},
		Segmentation: SegmentationConfig{
			Backend:           "dnn",
			ModelPath:         "models/selfie_segmentation.onnx",
			InputSize:         256,
			PoolSize:          2,
			Threshold:         0.5,
			CloseKernel:       3,
			FeatherSigma:      2.0,
			KeepLargest:       false,
			GrabCutIterations: 5,
			GrabCutMaxSide:    1200,
		},
		FaceMesh: FaceMeshConfig{
			CascadePath: "models/haarcascade_frontalface_default.xml",
			ModelPath:   "models/face_landmark.onnx",
			InputSize:   192,
			PoolSize:    2,
			CropPadding: 0.25,
		},
	}
}
