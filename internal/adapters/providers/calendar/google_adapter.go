package calendar

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
)

const googlePrimaryCalendar = "primary"

// GoogleAdapter implements CalendarProvider against a Google Calendar v3
// style REST API.
type GoogleAdapter struct {
	rest     *restClient
	tokenURL string
}

// NewGoogleAdapter creates a new Google calendar adapter
func NewGoogleAdapter(baseURL, tokenURL string, timeout time.Duration) *GoogleAdapter {
	return &GoogleAdapter{
		rest:     newRESTClient(entities.SourceGoogle, baseURL, timeout),
		tokenURL: tokenURL,
	}
}

// Source returns the tag fetched events carry.
func (a *GoogleAdapter) Source() entities.EventSource {
	return entities.SourceGoogle
}

type googleCalendarList struct {
	Items []struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
		Primary bool   `json:"primary"`
	} `json:"items"`
}

// ListCalendars returns the calendars reachable under the credential.
func (a *GoogleAdapter) ListCalendars(ctx context.Context, cred *entities.ProviderCredential) ([]entities.CalendarRef, error) {
	var list googleCalendarList
	if err := a.rest.doJSON(ctx, cred, http.MethodGet, "/users/me/calendarList", nil, nil, &list); err != nil {
		return nil, err
	}

	refs := make([]entities.CalendarRef, 0, len(list.Items))
	for _, item := range list.Items {
		refs = append(refs, entities.CalendarRef{
			ID:      item.ID,
			Name:    item.Summary,
			Primary: item.Primary,
		})
	}
	return refs, nil
}

type googleEvent struct {
	ID           string `json:"id"`
	Summary      string `json:"summary"`
	Status       string `json:"status,omitempty"`
	ColorID      string `json:"colorId,omitempty"`
	Transparency string `json:"transparency,omitempty"`
	Description  string `json:"description,omitempty"`
	Location     string `json:"location,omitempty"`
	Start        struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"end"`
}

type googleEventList struct {
	Items []googleEvent `json:"items"`
}

// FetchEvents returns one calendar's events overlapping [from, to).
func (a *GoogleAdapter) FetchEvents(ctx context.Context, cred *entities.ProviderCredential, calendar entities.CalendarRef, from, to time.Time) ([]entities.CalendarEvent, error) {
	query := url.Values{}
	query.Set("timeMin", from.UTC().Format(time.RFC3339))
	query.Set("timeMax", to.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	var list googleEventList
	path := "/calendars/" + url.PathEscape(calendar.ID) + "/events"
	if err := a.rest.doJSON(ctx, cred, http.MethodGet, path, query, nil, &list); err != nil {
		return nil, err
	}

	events := make([]entities.CalendarEvent, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Status == "cancelled" {
			continue
		}
		event, err := a.normalize(item)
		if err != nil {
			// Malformed single events are dropped, not fatal for the calendar.
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// CreateEvent creates an event on the primary calendar.
func (a *GoogleAdapter) CreateEvent(ctx context.Context, cred *entities.ProviderCredential, fields entities.EventFields) (*entities.CalendarEvent, error) {
	payload := map[string]interface{}{
		"summary":     fields.Title,
		"description": fields.Description,
		"location":    fields.Location,
		"start":       map[string]string{"dateTime": fields.Start.UTC().Format(time.RFC3339)},
		"end":         map[string]string{"dateTime": fields.End.UTC().Format(time.RFC3339)},
	}

	var created googleEvent
	path := "/calendars/" + googlePrimaryCalendar + "/events"
	if err := a.rest.doJSON(ctx, cred, http.MethodPost, path, nil, payload, &created); err != nil {
		return nil, err
	}

	event, err := a.normalize(created)
	if err != nil {
		return nil, transportError(a.Source(), err)
	}
	return &event, nil
}

// UpdateEvent patches the remote event.
func (a *GoogleAdapter) UpdateEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	payload := map[string]interface{}{}
	if patch.Title != nil {
		payload["summary"] = *patch.Title
	}
	if patch.Start != nil {
		payload["start"] = map[string]string{"dateTime": patch.Start.UTC().Format(time.RFC3339)}
	}
	if patch.End != nil {
		payload["end"] = map[string]string{"dateTime": patch.End.UTC().Format(time.RFC3339)}
	}

	var updated googleEvent
	path := "/calendars/" + googlePrimaryCalendar + "/events/" + url.PathEscape(remoteID)
	if err := a.rest.doJSON(ctx, cred, http.MethodPatch, path, nil, payload, &updated); err != nil {
		return nil, err
	}

	event, err := a.normalize(updated)
	if err != nil {
		return nil, transportError(a.Source(), err)
	}
	return &event, nil
}

// DeleteEvent removes the remote event.
func (a *GoogleAdapter) DeleteEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string) error {
	path := "/calendars/" + googlePrimaryCalendar + "/events/" + url.PathEscape(remoteID)
	return a.rest.doJSON(ctx, cred, http.MethodDelete, path, nil, nil, nil)
}

// RefreshToken exchanges the refresh token for a new access token.
func (a *GoogleAdapter) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return refreshGrant(ctx, a.rest.client, a.Source(), a.tokenURL, refreshToken)
}

// normalize maps the Google wire shape onto the shared event shape.
// Events marked transparent do not block time, so they come through as
// availability blocks.
func (a *GoogleAdapter) normalize(item googleEvent) (entities.CalendarEvent, error) {
	var (
		start, end time.Time
		allDay     bool
		err        error
	)

	if item.Start.Date != "" {
		allDay = true
		start, err = time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return entities.CalendarEvent{}, err
		}
		end, err = time.Parse("2006-01-02", item.End.Date)
	} else {
		start, err = time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return entities.CalendarEvent{}, err
		}
		end, err = time.Parse(time.RFC3339, item.End.DateTime)
	}
	if err != nil {
		return entities.CalendarEvent{}, err
	}

	kind := entities.KindEvent
	if item.Transparency == "transparent" {
		kind = entities.KindAvailabilityBlock
	}

	return entities.CalendarEvent{
		ID:       item.ID,
		Title:    item.Summary,
		Start:    start,
		End:      end,
		AllDay:   allDay,
		Source:   entities.SourceGoogle,
		RemoteID: item.ID,
		Color:    item.ColorID,
		Editable: true,
		Kind:     kind,
	}, nil
}

var _ providers.CalendarProvider = (*GoogleAdapter)(nil)
var _ providers.TokenRefresher = (*GoogleAdapter)(nil)
