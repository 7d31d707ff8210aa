package config

import "time"

// Socket definition socket_service YAML structure
type Socket struct {
	Port string `mapstructure:"port"`

	Redis   RedisConfig   `mapstructure:"redis"`
	Archive ArchiveConfig `mapstructure:"archive"`

	// 每個 (room, recipient) mailbox 的長度上限，超過丟最舊的
	MailboxMaxLen int64 `mapstructure:"mailbox_max_len"`
	// 單次 store 操作的 timeout
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

// ListenPort YAML 的 port 優先，沒設就退回 .env 的 SOCKET_SERVICE_PORT
func (s Socket) ListenPort() string {
	if s.Port != "" {
		return s.Port
	}
	return EnvConfig.SocketServicePort
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB       int `mapstructure:"redis_db"`
	RetryInterval int `mapstructure:"retry_interval"`
	RetryCount    int `mapstructure:"retry_count"`
}

// ArchiveConfig 外部 system-of-record 的 insert endpoint
type ArchiveConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}
