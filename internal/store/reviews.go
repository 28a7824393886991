package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
)

// ReviewRecord is a reviewer attached to a request.
type ReviewRecord struct {
	Target  review.Target
	Message string
}

// VerdictRecord is a stored admission verdict.
type VerdictRecord struct {
	Status    review.Status
	Message   string
	CreatedAt time.Time
}

// AddReview attaches target to the request. Adding a target twice keeps
// the first entry.
func (s *Store) AddReview(ctx context.Context, requestID int64, target review.Target, message string) error {
	row := reviewRow{}
	err := s.db.WithContext(ctx).
		Where(reviewRow{RequestID: requestID, Kind: string(target.Kind), Name: target.Name}).
		Attrs(reviewRow{Message: message, CreatedAt: time.Now().UTC()}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("add review %s to %d: %w", target, requestID, err)
	}
	return nil
}

// RecordVerdict stores verdict. A decline also closes the request.
func (s *Store) RecordVerdict(ctx context.Context, requestID int64, verdict review.Verdict) error {
	row := verdictRow{
		RequestID: requestID,
		Status:    string(verdict.Status),
		Message:   verdict.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record verdict for %d: %w", requestID, err)
	}
	if verdict.Status == review.Declined {
		err := s.db.WithContext(ctx).Model(&requestRow{}).
			Where("id = ?", requestID).
			Update("state", string(request.StateDeclined)).Error
		if err != nil {
			return fmt.Errorf("decline request %d: %w", requestID, err)
		}
	}
	return nil
}

// Reviews lists the reviewers attached to a request in insertion order.
func (s *Store) Reviews(ctx context.Context, requestID int64) ([]ReviewRecord, error) {
	var rows []reviewRow
	if err := s.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query reviews of %d: %w", requestID, err)
	}
	out := make([]ReviewRecord, len(rows))
	for i, r := range rows {
		out[i] = ReviewRecord{Target: review.Target{Kind: review.Kind(r.Kind), Name: r.Name}, Message: r.Message}
	}
	return out, nil
}

// Verdicts lists the verdicts recorded for a request, oldest first.
func (s *Store) Verdicts(ctx context.Context, requestID int64) ([]VerdictRecord, error) {
	var rows []verdictRow
	if err := s.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query verdicts of %d: %w", requestID, err)
	}
	out := make([]VerdictRecord, len(rows))
	for i, r := range rows {
		out[i] = VerdictRecord{Status: review.Status(r.Status), Message: r.Message, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// AddComment appends a comment to a request.
func (s *Store) AddComment(ctx context.Context, requestID int64, body string) error {
	row := commentRow{RequestID: requestID, Body: body, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("comment on %d: %w", requestID, err)
	}
	return nil
}

// Comments lists the comments on a request, oldest first.
func (s *Store) Comments(ctx context.Context, requestID int64) ([]string, error) {
	var bodies []string
	err := s.db.WithContext(ctx).Model(&commentRow{}).
		Where("request_id = ?", requestID).
		Order("id").
		Pluck("body", &bodies).Error
	if err != nil {
		return nil, fmt.Errorf("query comments of %d: %w", requestID, err)
	}
	return bodies, nil
}
