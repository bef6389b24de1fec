package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Service posts ops notifications to a generic JSON webhook.
type Service struct {
	webhookURL string
	appName    string
	httpClient *http.Client

	mu         sync.Mutex
	lastPushAt map[string]time.Time
	throttleD  time.Duration
}

// New creates an alert service. An empty webhookURL disables all pushes.
func New(webhookURL, appName string) *Service {
	return &Service{
		webhookURL: webhookURL,
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		lastPushAt: make(map[string]time.Time),
		throttleD:  10 * time.Minute,
	}
}

type pushPayload struct {
	App       string    `json:"app"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Push sends a notification immediately (no throttle).
func (s *Service) Push(title, body string) error {
	if s == nil || s.webhookURL == "" {
		return fmt.Errorf("alert webhook not configured")
	}

	payload := pushPayload{
		App:       s.appName,
		Title:     title,
		Body:      body,
		Timestamp: time.Now(),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ThrottlePush sends a rate-limit abuse notification, at most once per
// ip/path pair within the throttle window.
func (s *Service) ThrottlePush(ip, path string) {
	if s == nil || s.webhookURL == "" {
		return
	}

	throttleKey := ip + "|" + path

	s.mu.Lock()
	last, ok := s.lastPushAt[throttleKey]
	if ok && time.Since(last) < s.throttleD {
		s.mu.Unlock()
		return
	}
	s.lastPushAt[throttleKey] = time.Now()
	s.mu.Unlock()

	_ = s.Push("rate limit exceeded", fmt.Sprintf("IP: %s Path: %s", ip, path))
}
