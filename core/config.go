package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Video      VideoConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	VideoConfig struct {
		// CompletionThreshold is the watched percentage a video needs to count as completed
		// when the material does not define its own threshold.
		CompletionThreshold float64
	}

	AttendanceConfig struct {
		// TimeWindow is kept for compatibility with older deployments.
		// Submissions are bucketed per calendar day (UTC) regardless of its value.
		TimeWindow time.Duration
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// NewConfig loads the application configuration from defaults, an optional
// `config/.env.<env>` file and the environment (prefixed with the env name, e.g. `DEV_DEBUG`).
// The video threshold and attendance window also fall back to the unprefixed
// VIDEO_COMPLETION_THRESHOLD and ATTENDANCE_TIME_WINDOW.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "UniLearn")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "k2u!x8v(r4q%m9w+7s#ad&uo1p0e=dz^c3h@yg5$jlqf")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "unilearn")
	v.SetDefault("database.user", "unilearn")
	v.SetDefault("database.password", "unilearn")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.maxOpenConns", 20)
	v.SetDefault("video.completionThreshold", 80.0)
	v.SetDefault("attendance.timeWindow", "24h")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// unprefixed names shared with the other LMS services, used when the prefixed one is unset
	for key, name := range map[string]string{
		"video.completionThreshold": "VIDEO_COMPLETION_THRESHOLD",
		"attendance.timeWindow":     "ATTENDANCE_TIME_WINDOW",
	} {
		prefixed := env + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(prefixed); !ok {
			_ = v.BindEnv(key, name)
		}
	}

	conf := &Config{
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Video: VideoConfig{
			CompletionThreshold: v.GetFloat64("video.completionThreshold"),
		},
		Attendance: AttendanceConfig{
			TimeWindow: attendanceWindow(v.GetString("attendance.timeWindow")),
		},
	}
	if conf.Video.CompletionThreshold <= 0 || conf.Video.CompletionThreshold > 100 {
		log.Printf("config: invalid video.completionThreshold %v, using 80", conf.Video.CompletionThreshold)
		conf.Video.CompletionThreshold = 80
	}
	return conf
}

// attendanceWindow accepts either a Go duration ("24h") or a plain number of minutes ("1440").
func attendanceWindow(raw string) time.Duration {
	raw = CleanString(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if d, err := time.ParseDuration(raw + "m"); err == nil {
		return d
	}
	return 24 * time.Hour
}
