package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"browser-mcp/internal/application/port/output"

	"github.com/joho/godotenv"
)

var _ output.ConfigPort = (*EnvService)(nil)

// EnvService reads settings from the process environment after loading
// .env and .env.$APP_ENV. Real environment variables win over .env, the
// per-environment file wins over both.
type EnvService struct {
	appEnv string
	loaded []string
}

func NewEnvService() *EnvService {
	return NewEnvServiceFrom(".")
}

// NewEnvServiceFrom loads the dotenv files found in dir.
func NewEnvServiceFrom(dir string) *EnvService {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}
	svc := &EnvService{appEnv: appEnv}

	base := dir + string(os.PathSeparator) + ".env"
	if err := godotenv.Load(base); err == nil {
		svc.loaded = append(svc.loaded, base)
	}
	envFile := fmt.Sprintf("%s.%s", base, appEnv)
	if err := godotenv.Overload(envFile); err == nil {
		svc.loaded = append(svc.loaded, envFile)
	}
	return svc
}

func (e *EnvService) AppEnv() string {
	return e.appEnv
}

// Loaded lists the dotenv files that were applied.
func (e *EnvService) Loaded() []string {
	return e.loaded
}

func (e *EnvService) Get(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (e *EnvService) GetWithDefault(key string, defaultValue string) string {
	if val := e.Get(key); val != "" {
		return val
	}
	return defaultValue
}

func (e *EnvService) GetBool(key string, defaultValue bool) bool {
	val := e.Get(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (e *EnvService) GetInt(key string, defaultValue int) int {
	val := e.Get(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}
