package cfg

type WebServerCfg struct {
	Port uint   `json:"port"`
	Host string `json:"host"`
}

type DatabaseCfg struct {
	Dir string `json:"dir"`
}

type CaptureCfg struct {
	Attachments []string          `json:"attachments"`
	Annotations map[string]string `json:"annotations"`
}

type RabbitCfg struct {
	Server string `json:"server"`
	Queue  string `json:"queue"`
}

type CacheCfg struct {
	Memcache      []string `json:"memcache"`
	RedisAddres   string   `json:"redis_addr"`
	RedisPassword string   `json:"redis_password"`
}

type LogCfg struct {
	Level string `json:"level"`
}

type MonitoringCfg struct {
	Enable          bool   `json:"enable"`
	FlushTimeout    int    `json:"flush_timeout"`
	FlushBufferSize int    `json:"flush_buffer_size"`
	UdpAddress      string `json:"udp_addr"`
}

type JsonConfig struct {
	Server     *WebServerCfg  `json:"web_server"`
	Database   *DatabaseCfg   `json:"database"`
	Capture    *CaptureCfg    `json:"capture"`
	Rabbit     *RabbitCfg     `json:"rabbit_cfg"`
	Cache      *CacheCfg      `json:"cache"`
	Log        *LogCfg        `json:"log"`
	Monitoring *MonitoringCfg `json:"monitoring"`
}

func (cfg *JsonConfig) Port() uint {
	if cfg.Server == nil {
		return 0
	}
	return cfg.Server.Port
}

func (cfg *JsonConfig) Host() string {
	if cfg.Server == nil {
		return ""
	}
	return cfg.Server.Host
}

func (cfg *JsonConfig) DatabaseDir() string {
	return cfg.Database.Dir
}

func (cfg *JsonConfig) Attachments() []string {
	if cfg.Capture == nil {
		return nil
	}
	return cfg.Capture.Attachments
}

func (cfg *JsonConfig) Annotations() map[string]string {
	if cfg.Capture == nil {
		return nil
	}
	return cfg.Capture.Annotations
}

func (cfg *JsonConfig) LogLevel() string {
	if cfg.Log == nil {
		return "info"
	}
	return cfg.Log.Level
}

func (cfg *JsonConfig) RabbitServer() string {
	if cfg.Rabbit == nil {
		return ""
	}
	return cfg.Rabbit.Server
}

func (cfg *JsonConfig) RabbitQueue() string {
	if cfg.Rabbit == nil {
		return ""
	}
	return cfg.Rabbit.Queue
}

func (cfg *JsonConfig) Memcache() []string {
	if cfg.Cache == nil {
		return nil
	}
	return cfg.Cache.Memcache
}

func (cfg *JsonConfig) RedisAddres() string {
	if cfg.Cache == nil {
		return ""
	}
	return cfg.Cache.RedisAddres
}

func (cfg *JsonConfig) RedisPassword() string {
	if cfg.Cache == nil {
		return ""
	}
	return cfg.Cache.RedisPassword
}

func (cfg *JsonConfig) MonitoringEnable() bool {
	if cfg.Monitoring == nil {
		return false
	}
	return cfg.Monitoring.Enable
}

func (cfg *JsonConfig) FlushTimeout() int {
	return cfg.Monitoring.FlushTimeout
}

func (cfg *JsonConfig) FlushBufferSize() int {
	return cfg.Monitoring.FlushBufferSize
}

func (cfg *JsonConfig) UdpAddress() string {
	return cfg.Monitoring.UdpAddress
}
