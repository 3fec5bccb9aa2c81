package stub

import (
	"fmt"
	"strings"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/users"
)

const (
	defaultPerPage = 6
	supportURL     = "https://reqres.in/#support-heading"
	supportText    = "To keep ReqRes free, contributions towards server costs are appreciated!"
)

// Dataset is the user table served by the stub.
type Dataset struct {
	Users   []users.Record
	PerPage int
	Support users.SupportInfo
}

// ReqResDataset returns the twelve users published by ReqRes.
func ReqResDataset() Dataset {
	names := []struct{ first, last string }{
		{"George", "Bluth"},
		{"Janet", "Weaver"},
		{"Emma", "Wong"},
		{"Eve", "Holt"},
		{"Charles", "Morris"},
		{"Tracey", "Ramos"},
		{"Michael", "Lawson"},
		{"Lindsay", "Ferguson"},
		{"Tobias", "Funke"},
		{"Byron", "Fields"},
		{"George", "Edwards"},
		{"Rachel", "Howell"},
	}

	records := make([]users.Record, 0, len(names))
	for i, n := range names {
		id := i + 1
		records = append(records, users.Record{
			ID:        id,
			Email:     fmt.Sprintf("%s.%s@reqres.in", strings.ToLower(n.first), strings.ToLower(n.last)),
			FirstName: n.first,
			LastName:  n.last,
			Avatar:    fmt.Sprintf("https://reqres.in/img/faces/%d-image.jpg", id),
		})
	}

	return Dataset{
		Users:   records,
		PerPage: defaultPerPage,
		Support: users.SupportInfo{URL: supportURL, Text: supportText},
	}
}

// Page slices the dataset. Pages past the end hold no users.
func (d Dataset) Page(page, perPage int) users.PagedResponse {
	if perPage <= 0 {
		perPage = d.PerPage
	}
	total := len(d.Users)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	data := []users.Record{}
	if start >= 0 && start < total {
		end := start + perPage
		if end > total {
			end = total
		}
		data = append(data, d.Users[start:end]...)
	}

	return users.PagedResponse{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Data:       data,
		Support:    d.Support,
	}
}

// User finds a user by id.
func (d Dataset) User(id int) (users.Record, bool) {
	for _, record := range d.Users {
		if record.ID == id {
			return record, true
		}
	}
	return users.Record{}, false
}
