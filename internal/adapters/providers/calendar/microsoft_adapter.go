package calendar

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
)

// MicrosoftAdapter implements CalendarProvider against a Microsoft Graph
// style REST API.
type MicrosoftAdapter struct {
	rest     *restClient
	tokenURL string
}

// NewMicrosoftAdapter creates a new Microsoft Graph calendar adapter
func NewMicrosoftAdapter(baseURL, tokenURL string, timeout time.Duration) *MicrosoftAdapter {
	return &MicrosoftAdapter{
		rest:     newRESTClient(entities.SourceMicrosoft, baseURL, timeout),
		tokenURL: tokenURL,
	}
}

// Source returns the tag fetched events carry.
func (a *MicrosoftAdapter) Source() entities.EventSource {
	return entities.SourceMicrosoft
}

type graphCalendarList struct {
	Value []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsDefault bool   `json:"isDefaultCalendar"`
	} `json:"value"`
}

// ListCalendars returns the calendars reachable under the credential.
func (a *MicrosoftAdapter) ListCalendars(ctx context.Context, cred *entities.ProviderCredential) ([]entities.CalendarRef, error) {
	var list graphCalendarList
	if err := a.rest.doJSON(ctx, cred, http.MethodGet, "/me/calendars", nil, nil, &list); err != nil {
		return nil, err
	}

	refs := make([]entities.CalendarRef, 0, len(list.Value))
	for _, item := range list.Value {
		refs = append(refs, entities.CalendarRef{
			ID:      item.ID,
			Name:    item.Name,
			Primary: item.IsDefault,
		})
	}
	return refs, nil
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	IsAllDay    bool          `json:"isAllDay"`
	IsCancelled bool          `json:"isCancelled,omitempty"`
	ShowAs      string        `json:"showAs,omitempty"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
}

type graphEventList struct {
	Value []graphEvent `json:"value"`
}

// FetchEvents returns one calendar's events overlapping [from, to).
func (a *MicrosoftAdapter) FetchEvents(ctx context.Context, cred *entities.ProviderCredential, calendar entities.CalendarRef, from, to time.Time) ([]entities.CalendarEvent, error) {
	query := url.Values{}
	query.Set("startDateTime", from.UTC().Format(time.RFC3339))
	query.Set("endDateTime", to.UTC().Format(time.RFC3339))

	var list graphEventList
	path := "/me/calendars/" + url.PathEscape(calendar.ID) + "/calendarView"
	if err := a.rest.doJSON(ctx, cred, http.MethodGet, path, query, nil, &list); err != nil {
		return nil, err
	}

	events := make([]entities.CalendarEvent, 0, len(list.Value))
	for _, item := range list.Value {
		if item.IsCancelled {
			continue
		}
		event, err := a.normalize(item)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// CreateEvent creates an event on the default calendar.
func (a *MicrosoftAdapter) CreateEvent(ctx context.Context, cred *entities.ProviderCredential, fields entities.EventFields) (*entities.CalendarEvent, error) {
	payload := map[string]interface{}{
		"subject": fields.Title,
		"body": map[string]string{
			"contentType": "text",
			"content":     fields.Description,
		},
		"location": map[string]string{"displayName": fields.Location},
		"start":    graphDateTime{DateTime: fields.Start.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		"end":      graphDateTime{DateTime: fields.End.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
	}

	var created graphEvent
	if err := a.rest.doJSON(ctx, cred, http.MethodPost, "/me/events", nil, payload, &created); err != nil {
		return nil, err
	}

	event, err := a.normalize(created)
	if err != nil {
		return nil, transportError(a.Source(), err)
	}
	return &event, nil
}

// UpdateEvent patches the remote event.
func (a *MicrosoftAdapter) UpdateEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	payload := map[string]interface{}{}
	if patch.Title != nil {
		payload["subject"] = *patch.Title
	}
	if patch.Start != nil {
		payload["start"] = graphDateTime{DateTime: patch.Start.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
	}
	if patch.End != nil {
		payload["end"] = graphDateTime{DateTime: patch.End.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
	}

	var updated graphEvent
	path := "/me/events/" + url.PathEscape(remoteID)
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
func (a *MicrosoftAdapter) DeleteEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string) error {
	path := "/me/events/" + url.PathEscape(remoteID)
	return a.rest.doJSON(ctx, cred, http.MethodDelete, path, nil, nil, nil)
}

// RefreshToken exchanges the refresh token for a new access token.
func (a *MicrosoftAdapter) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return refreshGrant(ctx, a.rest.client, a.Source(), a.tokenURL, refreshToken)
}

// normalize maps the Graph wire shape onto the shared event shape. Events
// shown as free do not block time, so they come through as availability
// blocks.
func (a *MicrosoftAdapter) normalize(item graphEvent) (entities.CalendarEvent, error) {
	start, err := parseGraphTime(item.Start)
	if err != nil {
		return entities.CalendarEvent{}, err
	}
	end, err := parseGraphTime(item.End)
	if err != nil {
		return entities.CalendarEvent{}, err
	}

	kind := entities.KindEvent
	if item.ShowAs == "free" {
		kind = entities.KindAvailabilityBlock
	}

	return entities.CalendarEvent{
		ID:       item.ID,
		Title:    item.Subject,
		Start:    start,
		End:      end,
		AllDay:   item.IsAllDay,
		Source:   entities.SourceMicrosoft,
		RemoteID: item.ID,
		Editable: true,
		Kind:     kind,
	}, nil
}

// parseGraphTime handles Graph's fractional-second local datetimes.
func parseGraphTime(g graphDateTime) (time.Time, error) {
	value := g.DateTime
	if i := strings.IndexByte(value, '.'); i >= 0 {
		value = value[:i]
	}

	loc := time.UTC
	if g.TimeZone != "" && g.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(g.TimeZone); err == nil {
			loc = parsed
		}
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, loc)
}

var _ providers.CalendarProvider = (*MicrosoftAdapter)(nil)
var _ providers.TokenRefresher = (*MicrosoftAdapter)(nil)
