package appdir

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
)

//go:embed default_config.yaml
var defaultConfigYAML []byte

// serverIDPlaceholder заменяется случайным server_id при первом запуске.
const serverIDPlaceholder = "__SERVER_ID__"

// writeDefaultConfig записывает дефолтный конфиг в указанный путь.
// Каждая установка получает собственный server_id.
func writeDefaultConfig(path string) error {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return fmt.Errorf("generate server id: %w", err)
	}
	data := bytes.ReplaceAll(defaultConfigYAML, []byte(serverIDPlaceholder), []byte(hex.EncodeToString(raw[:])))

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// DefaultConfigYAML возвращает шаблон дефолтного конфига.
func DefaultConfigYAML() []byte {
	return defaultConfigYAML
}
