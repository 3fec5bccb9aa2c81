// Package users models the paginated user listing returned by the ReqRes API.
package users

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// PagedResponse is one page of the user listing.
type PagedResponse struct {
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Data       []Record    `json:"data"`
	Support    SupportInfo `json:"support"`
}

// Record is a single user entry.
type Record struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

// SupportInfo is the support banner attached to every listing.
type SupportInfo struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Single wraps one user as returned by the user detail endpoint.
type Single struct {
	Data    Record      `json:"data"`
	Support SupportInfo `json:"support"`
}

// Validate checks the structural invariants of a page.
func (p PagedResponse) Validate() error {
	var errs []error
	if p.Page < 0 {
		errs = append(errs, fmt.Errorf("page must be non-negative, got %d", p.Page))
	}
	if p.PerPage < 0 {
		errs = append(errs, fmt.Errorf("per_page must be non-negative, got %d", p.PerPage))
	}
	if p.Total < 0 || p.TotalPages < 0 {
		errs = append(errs, fmt.Errorf("totals must be non-negative, got total=%d total_pages=%d", p.Total, p.TotalPages))
	}
	if len(p.Data) > p.PerPage {
		errs = append(errs, fmt.Errorf("data holds %d users but per_page is %d", len(p.Data), p.PerPage))
	}
	return errors.Join(errs...)
}

// IDs returns the user ids in page order.
func (p PagedResponse) IDs() []int {
	ids := make([]int, 0, len(p.Data))
	for _, record := range p.Data {
		ids = append(ids, record.ID)
	}
	return ids
}

// LogFields writes every field of the page to logger for human inspection.
func LogFields(logger *zap.SugaredLogger, p PagedResponse) {
	logger.Infow("page", "value", p.Page)
	logger.Infow("per page", "value", p.PerPage)
	logger.Infow("total", "value", p.Total)
	logger.Infow("total pages", "value", p.TotalPages)
	logger.Infow("support url", "value", p.Support.URL)
	logger.Infow("support text", "value", p.Support.Text)
	for _, record := range p.Data {
		logger.Infow("user",
			"id", record.ID,
			"email", record.Email,
			"firstName", record.FirstName,
			"lastName", record.LastName,
			"avatar", record.Avatar,
		)
	}
}
