package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Auth struct {
		JWTSecret string
	}
	Swarm struct {
		DataDir               string
		Trackers              []string
		StatusIntervalSeconds int
		NoPeerDelaySeconds    int
		MaxRecoveries         int
	}
	Transcode struct {
		BaseURL     string
		APIKey      string
		PollSeconds int
		MaxAttempts int
	}
	Probe struct {
		TimeoutSeconds int
		STUNServers    []string
		TURNServer     string
		TURNUser       string
		TURNSecret     string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("STREAMBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("swarm.datadir", "data/swarm")
	v.SetDefault("swarm.trackers", []string{})
	v.SetDefault("swarm.statusintervalseconds", 2)
	v.SetDefault("swarm.nopeerdelayseconds", 5)
	v.SetDefault("swarm.maxrecoveries", 5)
	v.SetDefault("transcode.baseurl", "https://livepeer.studio/api")
	v.SetDefault("transcode.apikey", "")
	v.SetDefault("transcode.pollseconds", 5)
	v.SetDefault("transcode.maxattempts", 60)
	v.SetDefault("probe.timeoutseconds", 5)
	v.SetDefault("probe.stunservers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("probe.turnserver", "turn:openrelay.metered.ca:443?transport=tcp")
	v.SetDefault("probe.turnuser", "openrelayproject")
	v.SetDefault("probe.turnsecret", "openrelayproject")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
