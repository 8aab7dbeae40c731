package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Media    MediaConfig
		Scraper  ScraperConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite file
	}

	RedisConfig struct {
		Addr     string // empty: in-process notification bus
		Password string
		Channel  string
	}

	MediaConfig struct {
		Dir                  string // uploads, chunks and local HLS output
		PublicURL            string // URL prefix HLS playlists are served from
		Storage              string // local | gcs
		GCSBucket            string
		GCSCredentialsFile   string
		FFmpegBin            string
		FFprobeBin           string
		MaxChunkSize         int64
		MaxUploadSize        int64
		AllowedExtensions    []string
		TranscodeConcurrency int // videos transcoded at once
		ParallelEncodes      int // ffmpeg processes per video
		TranscodeTimeout     time.Duration
		HLSSegmentSeconds    int
		Renditions           []Rendition
	}

	// Rendition is one HLS variant stream.
	Rendition struct {
		Name         string // e.g. 720p
		Height       int
		VideoBitrate string // e.g. 2800k
		AudioBitrate string // e.g. 128k
	}

	ScraperConfig struct {
		PythonBin   string
		LuoguScript string
		GespScript  string
		Timeout     time.Duration
	}
)

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

// SetDefaultFromEmail overrides the sender address (tests).
func (c *Config) SetDefaultFromEmail(addr string) { c.defaultFromEmail = addr }

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (db DatabaseConfig) IsSQLite() bool { return db.Engine == "sqlite" }

func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(v, env)
	v.AutomaticEnv()

	conf := &Config{
		AppName:                   v.GetString("appname"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  env == "TEST",
		SecretKey:                 v.GetString("secretkey"),
		FrontendBaseURL:           v.GetString("frontendbaseurl"),
		WorkDir:                   wd,
		RollbarToken:              v.GetString("rollbartoken"),
		SendgridApiKey:            v.GetString("sendgridapikey"),
		defaultFromEmail:          v.GetString("defaultfromemail"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordresettimeoutdelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debughost"),
			ShutdownTimeout:           v.GetDuration("server.shutdowntimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtexpirationdelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtrefreshexpirationdelta"),
			DisableReqLogs:            v.GetBool("server.disablereqlogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminuser"),
			AdminPassword: v.GetString("database.adminpassword"),
			DisableTLS:    v.GetBool("database.disabletls"),
			Path:          v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			Channel:  v.GetString("redis.channel"),
		},
		Media: MediaConfig{
			Dir:                  v.GetString("media.dir"),
			PublicURL:            v.GetString("media.publicurl"),
			Storage:              v.GetString("media.storage"),
			GCSBucket:            v.GetString("media.gcsbucket"),
			GCSCredentialsFile:   v.GetString("media.gcscredentialsfile"),
			FFmpegBin:            v.GetString("media.ffmpegbin"),
			FFprobeBin:           v.GetString("media.ffprobebin"),
			MaxChunkSize:         v.GetInt64("media.maxchunksize"),
			MaxUploadSize:        v.GetInt64("media.maxuploadsize"),
			AllowedExtensions:    v.GetStringSlice("media.allowedextensions"),
			TranscodeConcurrency: v.GetInt("media.transcodeconcurrency"),
			ParallelEncodes:      v.GetInt("media.parallelencodes"),
			TranscodeTimeout:     v.GetDuration("media.transcodetimeout"),
			HLSSegmentSeconds:    v.GetInt("media.hlssegmentseconds"),
			Renditions:           defaultRenditions(),
		},
		Scraper: ScraperConfig{
			PythonBin:   v.GetString("scraper.pythonbin"),
			LuoguScript: v.GetString("scraper.luoguscript"),
			GespScript:  v.GetString("scraper.gespscript"),
			Timeout:     v.GetDuration("scraper.timeout"),
		},
	}
	if !filepath.IsAbs(conf.Media.Dir) {
		conf.Media.Dir = filepath.Join(wd, conf.Media.Dir)
	}
	for _, script := range []*string{&conf.Scraper.LuoguScript, &conf.Scraper.GespScript} {
		if !filepath.IsAbs(*script) {
			*script = filepath.Join(wd, *script)
		}
	}
	if conf.Database.IsSQLite() && !filepath.IsAbs(conf.Database.Path) {
		conf.Database.Path = filepath.Join(wd, conf.Database.Path)
	}
	return conf
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appname", "OIClass")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("secretkey", "r7w!k2$p0q^x9z@dev-only-secret-change-me#4m8b")
	v.SetDefault("frontendbaseurl", "http://localhost:3000")
	v.SetDefault("defaultfromemail", "OIClass <noreply@localhost>")
	v.SetDefault("passwordresettimeoutdelta", 3*24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debughost", ":4000")
	v.SetDefault("server.shutdowntimeout", 5*time.Second)
	v.SetDefault("server.jwtexpirationdelta", 7*24*time.Hour)
	v.SetDefault("server.jwtrefreshexpirationdelta", 30*24*time.Hour)
	v.SetDefault("server.disablereqlogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "oiclass")
	v.SetDefault("database.user", "oiclass")
	v.SetDefault("database.password", "oiclass")
	v.SetDefault("database.adminuser", "postgres")
	v.SetDefault("database.adminpassword", "")
	v.SetDefault("database.disabletls", true)
	v.SetDefault("database.path", "oiclass.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.channel", "oiclass:notifications")

	v.SetDefault("media.dir", "media")
	v.SetDefault("media.publicurl", "/media")
	v.SetDefault("media.storage", "local")
	v.SetDefault("media.gcsbucket", "")
	v.SetDefault("media.gcscredentialsfile", "")
	v.SetDefault("media.ffmpegbin", "ffmpeg")
	v.SetDefault("media.ffprobebin", "ffprobe")
	v.SetDefault("media.maxchunksize", int64(10<<20))
	v.SetDefault("media.maxuploadsize", int64(4<<30))
	v.SetDefault("media.allowedextensions", []string{".mp4", ".mov", ".mkv", ".webm", ".avi"})
	v.SetDefault("media.transcodeconcurrency", 2)
	v.SetDefault("media.parallelencodes", 1)
	v.SetDefault("media.transcodetimeout", 2*time.Hour)
	v.SetDefault("media.hlssegmentseconds", 6)

	v.SetDefault("scraper.pythonbin", "python3")
	v.SetDefault("scraper.luoguscript", "scripts/luogu.py")
	v.SetDefault("scraper.gespscript", "scripts/gesp.py")
	v.SetDefault("scraper.timeout", 2*time.Minute)
}

func defaultRenditions() []Rendition {
	return []Rendition{
		{Name: "360p", Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
		{Name: "720p", Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
		{Name: "1080p", Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	}
}
