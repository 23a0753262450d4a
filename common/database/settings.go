package database

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-errors/errors"
	uuid "github.com/satori/go.uuid"
)

const settingsFn = "settings.json"

type settingsData struct {
	ClientId  string `json:"client_id"`
	CreatedAt string `json:"created_at"`
}

// fileSettings keeps the stable client identity next to the reports. The
// client id is created lazily on first read.
type fileSettings struct {
	mu       sync.Mutex
	path     string
	clientId uuid.UUID
}

func newFileSettings(path string) *fileSettings {
	return &fileSettings{path: path}
}

func (s *fileSettings) GetClientID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clientId != uuid.Nil {
		return s.clientId, nil
	}

	data, err := os.ReadFile(s.path)
	if err == nil {
		var parsed settingsData
		if err := json.Unmarshal(data, &parsed); err != nil {
			return uuid.Nil, errors.WrapPrefix(err, "parse settings", 0)
		}
		id, err := uuid.FromString(parsed.ClientId)
		if err != nil {
			return uuid.Nil, errors.WrapPrefix(err, "parse client id", 0)
		}
		s.clientId = id
		return id, nil
	}
	if !os.IsNotExist(err) {
		return uuid.Nil, errors.WrapPrefix(err, "read settings", 0)
	}

	id := uuid.NewV4()
	out, err := json.Marshal(&settingsData{
		ClientId:  id.String(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return uuid.Nil, errors.WrapPrefix(err, "serialize settings", 0)
	}
	if err := os.WriteFile(s.path, out, 0644); err != nil {
		return uuid.Nil, errors.WrapPrefix(err, "write settings", 0)
	}

	s.clientId = id
	return id, nil
}
