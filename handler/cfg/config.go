package cfg

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Config interface {
	Port() uint
	Host() string
	DatabaseDir() string
	Attachments() []string
	Annotations() map[string]string
	LogLevel() string

	RabbitServer() string
	RabbitQueue() string

	Memcache() []string
	RedisAddres() string
	RedisPassword() string

	// monitoring
	MonitoringEnable() bool
	FlushTimeout() int
	FlushBufferSize() int
	UdpAddress() string
}

var GlobalConfigMutex sync.Mutex
var GlobalConfig Config
var GlobalConfigPath string

func FromJson(pathTo string) (Config, error) {
	file, err := os.Open(pathTo)
	if err != nil {
		log.WithError(err).Error("Get config failed")
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var jconf JsonConfig
	err = decoder.Decode(&jconf)
	if err != nil {
		log.WithError(err).Error("Error at cfg parsing")
		return nil, err
	}

	if jconf.Database == nil || len(jconf.Database.Dir) == 0 {
		return nil, errors.New("The path to the crash report database is not set")
	}

	return &jconf, nil
}
