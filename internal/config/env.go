package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Environment is the process level configuration. It is read once at startup.
type Environment struct {
	AppEnv       string `env:"APP_ENV" envDefault:"production"`
	PythonExe    string `env:"PYTHON_EXECUTABLE" envDefault:"python3"`
	BaseModel    string `env:"YOLO_BASE_MODEL" envDefault:"yolo11n.yaml"`
	ProjectDir   string `env:"YOLO_PROJECT_DIR" envDefault:"./my_runs"`
	InferenceURL string `env:"INFERENCE_URL" envDefault:""`
	ConfigPath   string `env:"CONFIG_PATH" envDefault:"config.json"`
	LogDir       string `env:"LOG_DIR" envDefault:"./logs"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadEnvironment loads an optional .env file and parses the environment.
// The bool reports whether a .env file was found.
func LoadEnvironment(files ...string) (*Environment, bool, error) {
	found := godotenv.Load(files...) == nil

	var e Environment
	if err := env.Parse(&e); err != nil {
		return nil, found, err
	}

	if e.AppEnv == "test" {
		e.LogDir = ""
	}

	return &e, found, nil
}
