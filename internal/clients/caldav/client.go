// Package caldav is the calendar-access client: authenticated discovery,
// listing, creation, update, and deletion of individual calendar events
// over CalDAV.
package caldav

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/tazhate/calsync/internal/ics"
)

// Calendar is a calendar collection discovered on the server.
type Calendar struct {
	Path        string
	DisplayName string
}

// Client talks to one CalDAV account.
type Client struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	client   *caldav.Client
}

// NewClient creates a client for the given account. A zero timeout falls
// back to 30 seconds.
func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		timeout:  timeout,
	}
}

// connect establishes the CalDAV session lazily.
func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &authTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: c.timeout,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("connect to CalDAV: %w", err)}
	}

	c.client = client
	return client, nil
}

// authTransport adds Basic Auth and maps HTTP failure classes onto the
// client error taxonomy before the WebDAV layer sees them.
type authTransport struct {
	username string
	password string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drain(resp)
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		return nil, &NotFoundError{Path: req.URL.Path}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		drain(resp)
		return nil, &TransientError{Status: resp.StatusCode}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ListCalendars returns all calendar collections for the account.
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("find principal: %w", err))
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, classify(fmt.Errorf("find calendar home set: %w", err))
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, classify(fmt.Errorf("find calendars: %w", err))
	}

	var result []Calendar
	for _, cal := range cals {
		result = append(result, Calendar{Path: cal.Path, DisplayName: cal.Name})
	}
	return result, nil
}

// FindCalendar resolves a calendar name to a collection path. An empty name
// picks the first discovered calendar. When discovery yields no match the
// name is joined onto the base URL path, which covers servers whose
// accounts point straight at a calendar home.
func (c *Client) FindCalendar(ctx context.Context, name string) (string, error) {
	cals, err := c.ListCalendars(ctx)
	if err == nil {
		for _, cal := range cals {
			if name == "" || cal.DisplayName == name || strings.Trim(cal.Path, "/") == strings.Trim(name, "/") {
				return cal.Path, nil
			}
		}
	}
	if name == "" {
		if err != nil {
			return "", err
		}
		return "", &NotFoundError{Path: c.baseURL}
	}

	u, perr := url.Parse(c.baseURL)
	if perr != nil {
		return "", &ProtocolError{Err: fmt.Errorf("parse CalDAV URL: %w", perr)}
	}
	base := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(base, "/"+name) || base == name {
		return base + "/", nil
	}
	return base + "/" + name + "/", nil
}

// ListEvents queries events in the given window. The window is sent to the
// server as a time-range filter and applied again client-side, since not
// every server honors the filter. Objects that cannot be parsed are skipped
// with a warning.
func (c *Client) ListEvents(ctx context.Context, calendarPath string, window ics.Window) ([]ics.Event, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	if calendarPath == "" {
		return nil, &NotFoundError{Path: c.baseURL}
	}

	compFilter := caldav.CompFilter{Name: ical.CompEvent}
	if !window.Start.IsZero() {
		compFilter.Start = window.Start
	}
	if !window.End.IsZero() {
		compFilter.End = window.End
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{compFilter},
		},
	}

	objects, err := client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, classify(fmt.Errorf("query calendar %s: %w", calendarPath, err))
	}

	var events []ics.Event
	for i := range objects {
		obj := &objects[i]
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			ev, err := ics.EventFromComponent(comp)
			if err != nil {
				log.Printf("Skipping unparseable event at %s: %v", obj.Path, err)
				continue
			}
			ev.Path = obj.Path
			if window.Contains(&ev) {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// PutEvent creates or replaces an event resource. An event listed from the
// server carries its resource path and is written back to it; a new event is
// stored under a UID-derived name. Servers name resources arbitrarily, so
// the listed path must never be reconstructed.
func (c *Client) PutEvent(ctx context.Context, calendarPath string, event *ics.Event) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if calendarPath == "" {
		return &NotFoundError{Path: c.baseURL}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ics.DefaultProdID)
	cal.Children = append(cal.Children, event.Component())

	eventPath := event.Path
	if eventPath == "" {
		eventPath = eventResourcePath(calendarPath, event.UID)
	}
	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return classify(fmt.Errorf("put event %s: %w", event.UID, err))
	}
	return nil
}

// DeleteEvent removes an event resource at the path it was listed under,
// falling back to the UID-derived name for events without one.
func (c *Client) DeleteEvent(ctx context.Context, calendarPath string, event *ics.Event) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	eventPath := event.Path
	if eventPath == "" {
		eventPath = eventResourcePath(calendarPath, event.UID)
	}
	if err := client.RemoveAll(ctx, eventPath); err != nil {
		return classify(fmt.Errorf("delete event %s: %w", event.UID, err))
	}
	return nil
}

func eventResourcePath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + url.PathEscape(uid) + ".ics"
}
