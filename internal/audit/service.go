// Package audit records security-relevant events without blocking
// request handling.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/kompanion/kompanion/internal/database/audit"
	"github.com/kompanion/kompanion/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// LogLogin records an authentication attempt.
func (s *Service) LogLogin(userID uint, username, ip string, success bool) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventLogin,
		Action:      "login",
		Description: "Login attempt for " + username,
		IP:          ip,
		Status:      entities.AuditStatusSuccess,
	}
	if !success {
		event.EventType = entities.AuditEventLoginFailed
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// LogRegister records a new account registration.
func (s *Service) LogRegister(userID uint, username, ip string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventRegister,
		Action:      "user_register",
		Description: "Registered user " + username,
		IP:          ip,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogUpload records a book upload.
func (s *Service) LogUpload(userID uint, bookID uint, title, ip string, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventUpload,
		Action:      "book_upload",
		Description: "Uploaded " + title,
		IP:          ip,
		Status:      entities.AuditStatusSuccess,
	}
	if md, e := json.Marshal(map[string]any{"book_id": bookID}); e == nil {
		event.Metadata = string(md)
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogDownload records a book download.
func (s *Service) LogDownload(userID uint, bookID uint, title, ip string) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventDownload,
		Action:      "book_download",
		Description: "Downloaded " + title,
		IP:          ip,
		Status:      entities.AuditStatusSuccess,
	}
	if md, e := json.Marshal(map[string]any{"book_id": bookID}); e == nil {
		event.Metadata = string(md)
	}
	s.LogAsync(event)
}

// LogDelete records a deletion event.
func (s *Service) LogDelete(userID uint, entityType string, entityID uint, entityName string) {
	s.LogAsync(&entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventDelete,
		Action:      entityType + "_delete",
		Description: "Deleted " + entityType + ": " + entityName,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogSync records a progress sync event.
func (s *Service) LogSync(userID uint, document, device string, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventSync,
		Action:      "progress_push",
		Description: "Progress update for " + document + " from " + device,
		Status:      entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogWebDAVPut records a statistics upload over WebDAV.
func (s *Service) LogWebDAVPut(userID uint, path, ip string, size int) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventWebDAVPut,
		Action:      "webdav_put",
		Description: "Uploaded " + path,
		IP:          ip,
		Status:      entities.AuditStatusSuccess,
	}
	if md, e := json.Marshal(map[string]any{"size": size}); e == nil {
		event.Metadata = string(md)
	}
	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(userID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(userID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, userID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, userID, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOlderThan(cutoff)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
