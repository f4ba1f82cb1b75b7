package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StorageState is a snapshot of cookies and local storage, in the JSON
// shape Playwright uses for its storage-state files.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Cookie is one browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HttpOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Origin holds the local storage of one origin.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a local storage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Marshal renders the state as indented JSON.
func (s *StorageState) Marshal() ([]byte, error) {
	if s == nil {
		s = &StorageState{}
	}
	if s.Cookies == nil {
		s.Cookies = []Cookie{}
	}
	if s.Origins == nil {
		s.Origins = []Origin{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// WriteFile writes the state to path, creating parent directories.
func (s *StorageState) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("marshal storage state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage state dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write storage state %s: %w", path, err)
	}
	return nil
}

// SaveStorageState captures the driver's storage state and writes it to path.
func SaveStorageState(ctx context.Context, d Driver, path string) (*StorageState, error) {
	state, err := d.StorageState(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}
	if err := state.WriteFile(path); err != nil {
		return nil, err
	}
	return state, nil
}

// localStorageJS returns the page origin and its local storage entries.
const localStorageJS = `(() => {
	let items = [];
	try { items = Object.entries(window.localStorage || {}); } catch (e) {}
	return JSON.stringify({origin: location.origin, items: items});
})()`

type localStorageSnapshot struct {
	Origin string      `json:"origin"`
	Items  [][2]string `json:"items"`
}

// origins converts a localStorageJS result into storage-state origins.
// Opaque origins such as about:blank produce no entry.
func (s localStorageSnapshot) origins() []Origin {
	if s.Origin == "" || s.Origin == "null" {
		return nil
	}
	o := Origin{Origin: s.Origin, LocalStorage: []NameValue{}}
	for _, kv := range s.Items {
		o.LocalStorage = append(o.LocalStorage, NameValue{Name: kv[0], Value: kv[1]})
	}
	return []Origin{o}
}

func parseLocalStorage(raw string) (localStorageSnapshot, error) {
	var snap localStorageSnapshot
	if raw == "" {
		return snap, nil
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return snap, fmt.Errorf("decode local storage: %w", err)
	}
	return snap, nil
}
