package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string
	LogMode   string // dev|prod

	DBDriver string
	DBDSN    string

	BlobBasePath string

	JupyterHubURL       string
	JupyterHubToken     string // hub API token, sent as "Authorization: token ..."
	JupyterHubJWTSecret string // HS256 secret for the {"name": user} login token
	GradeServiceURL     string
	IsContainer         bool // rewrite loopback service URLs to the docker host
	HTTPTimeout         time.Duration

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOrigins []string
}

// Load reads CONFIG_FILE (if set) and then the environment. Environment
// variables win over file values; keys are the same in both.
func Load() (Config, error) {
	file := map[string]string{}
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		var err error
		if file, err = LoadFile(p); err != nil {
			return Config{}, err
		}
	}
	return build(lookup(file)), nil
}

// FromEnv builds the config from the environment only.
func FromEnv() Config { return build(lookup(nil)) }

// LoadFile parses a flat YAML mapping of KEY: value.
func LoadFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(t)
		}
	}
	return out, nil
}

type getter func(k string) string

func lookup(file map[string]string) getter {
	return func(k string) string {
		if v := os.Getenv(k); v != "" {
			return v
		}
		return file[k]
	}
}

func build(get getter) Config {
	mode := Mode(get("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	logMode := "dev"
	if mode == ModeOnline {
		logMode = "prod"
	}
	return Config{
		Mode:      mode,
		HTTPAddr:  envOr(get, "HTTP_ADDR", ":8080"),
		PublicURL: get("PUBLIC_URL"),
		LogMode:   envOr(get, "LOG_MODE", logMode),

		DBDriver:     envOr(get, "DB_DRIVER", "sqlite"),
		DBDSN:        get("DB_DSN"),
		BlobBasePath: envOr(get, "BLOB_BASE_PATH", "./data"),

		JupyterHubURL:       strings.TrimRight(get("JUPYTERHUB_URL"), "/"),
		JupyterHubToken:     get("JUPYTERHUB_API_TOKEN"),
		JupyterHubJWTSecret: get("JUPYTERHUB_JWT_SECRET"),
		GradeServiceURL:     strings.TrimRight(get("GRADESERVICE_URL"), "/"),
		IsContainer:         envBool(get, "IS_CONTAINER", false),
		HTTPTimeout:         envDuration(get, "HTTP_TIMEOUT", 30*time.Second),

		AuthHMACSecret: envOr(get, "AUTH_HMAC_SECRET", "dev-secret-change-me"),
		AdminUser:      envOr(get, "ADMIN_USER", "admin"),
		AdminPassHash:  get("ADMIN_PASS_HASH"),

		CORSOrigins: csvOr(get, "CORS_ORIGINS", "http://localhost:3000"),
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.JupyterHubURL == "" {
		errs = append(errs, errors.New("JUPYTERHUB_URL is required"))
	}
	if c.JupyterHubToken == "" {
		errs = append(errs, errors.New("JUPYTERHUB_API_TOKEN is required"))
	}
	if c.JupyterHubJWTSecret == "" {
		errs = append(errs, errors.New("JUPYTERHUB_JWT_SECRET is required"))
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DB_DRIVER %q: want sqlite or postgres", c.DBDriver))
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "dev-secret-change-me" {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET must be set in online mode"))
	}
	return errors.Join(errs...)
}

func envOr(get getter, k, def string) string {
	v := get(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(get getter, k string, def bool) bool {
	switch get(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envDuration(get getter, k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(get(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func csvOr(get getter, k, def string) []string {
	v := envOr(get, k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
