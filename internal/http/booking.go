package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/example/seat-booking-client/internal/application"
	"github.com/example/seat-booking-client/internal/eligibility"
)

type availabilityRequest struct {
	Enter time.Time `json:"enter"`
	Leave time.Time `json:"leave"`
}

// ListPreferences implements application.BookingAPI.
func (c *Client) ListPreferences(ctx context.Context, target application.Target) ([]eligibility.Setting, error) {
	var out []eligibility.Setting
	err := c.do(ctx, authorized(target, http.MethodGet, "/preferences", nil), &out)
	return out, err
}

// ListBookings implements application.BookingAPI.
func (c *Client) ListBookings(ctx context.Context, target application.Target) ([]application.Booking, error) {
	var out []application.Booking
	err := c.do(ctx, authorized(target, http.MethodGet, "/bookings", nil), &out)
	return out, err
}

// Precheck implements application.BookingAPI.
func (c *Client) Precheck(ctx context.Context, target application.Target, req application.PrecheckRequest) error {
	return c.do(ctx, authorized(target, http.MethodPost, "/booking/precheck/", req), nil)
}

// CreateBooking implements application.BookingAPI.
func (c *Client) CreateBooking(ctx context.Context, target application.Target, req application.BookingRequest) (application.Booking, error) {
	var out application.Booking
	err := c.do(ctx, authorized(target, http.MethodPost, "/booking", req), &out)
	return out, err
}

// DeleteBooking implements application.BookingAPI.
func (c *Client) DeleteBooking(ctx context.Context, target application.Target, bookingID string) error {
	return c.do(ctx, authorized(target, http.MethodDelete, "/booking/"+url.PathEscape(bookingID), nil), nil)
}

// ListLocations implements application.BookingAPI.
func (c *Client) ListLocations(ctx context.Context, target application.Target) ([]application.Location, error) {
	var out []application.Location
	err := c.do(ctx, authorized(target, http.MethodGet, "/locations", nil), &out)
	return out, err
}

// GetLocation implements application.BookingAPI.
func (c *Client) GetLocation(ctx context.Context, target application.Target, locationID string) (application.Location, error) {
	var out application.Location
	err := c.do(ctx, authorized(target, http.MethodGet, "/locations/"+url.PathEscape(locationID), nil), &out)
	return out, err
}

// ListSpaceAvailability implements application.BookingAPI.
func (c *Client) ListSpaceAvailability(ctx context.Context, target application.Target, locationID string, interval eligibility.Interval) ([]application.Space, error) {
	var out []application.Space
	path := "/locations/" + url.PathEscape(locationID) + "/spaces/availability"
	err := c.do(ctx, authorized(target, http.MethodPost, path, availabilityRequest{Enter: interval.Enter, Leave: interval.Leave}), &out)
	return out, err
}

func authorized(target application.Target, method, path string, body any) request {
	return request{method: method, baseURL: target.BaseURL, path: path, token: target.AccessToken, body: body}
}
