// Package square adapts Square Appointments bookings to the normalized
// booking shape. Customer contact details and service prices come from the
// customers and catalog APIs.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"retention_backend/internal/booking/adapters/apiclient"
	"retention_backend/internal/booking/domain"
	"retention_backend/platform/apperr"
	"retention_backend/platform/config"
	"retention_backend/platform/phone"
)

const (
	pageLimit      = 100
	bulkBatchLimit = 100
)

type bookingDTO struct {
	ID                  string       `json:"id"`
	Status              string       `json:"status"`
	StartAt             string       `json:"start_at"`
	CreatedAt           string       `json:"created_at"`
	CustomerID          string       `json:"customer_id"`
	CustomerNote        string       `json:"customer_note"`
	SellerNote          string       `json:"seller_note"`
	AppointmentSegments []segmentDTO `json:"appointment_segments"`
}

type segmentDTO struct {
	ServiceVariationID string `json:"service_variation_id"`
}

type listBookingsResponse struct {
	Bookings []json.RawMessage `json:"bookings"`
	Cursor   string            `json:"cursor"`
}

type customerDTO struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	Note         string `json:"note"`
}

type bulkCustomersResponse struct {
	Responses map[string]struct {
		Customer *customerDTO `json:"customer"`
	} `json:"responses"`
}

type catalogObjectDTO struct {
	ID                string `json:"id"`
	ItemVariationData *struct {
		Name       string `json:"name"`
		PriceMoney *struct {
			Amount int64 `json:"amount"`
		} `json:"price_money"`
	} `json:"item_variation_data"`
}

type catalogResponse struct {
	Objects []catalogObjectDTO `json:"objects"`
}

type service struct {
	name       string
	priceCents int64
}

// Adapter fetches bookings from the Square API.
type Adapter struct {
	baseURL string
	api     *apiclient.Client
}

// New creates a Square adapter from configuration.
func New(cfg config.SquareConfig) *Adapter {
	api := apiclient.New("square", cfg.GetSquareRequestsPerSecond()).
		WithHeader("Square-Version", cfg.GetSquareAPIVersion())
	return &Adapter{baseURL: strings.TrimRight(cfg.GetSquareBaseURL(), "/"), api: api}
}

// NewWithClient creates an adapter against baseURL using api.
func NewWithClient(baseURL string, api *apiclient.Client) *Adapter {
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), api: api}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformSquare }

// Fetch pages through the bookings that start inside window and enriches them
// with customer and service details.
func (a *Adapter) Fetch(ctx context.Context, integration domain.Integration, window domain.Window) (domain.FetchResult, error) {
	if err := apiclient.RequireToken(integration.AccessToken); err != nil {
		return domain.FetchResult{}, err
	}
	token := integration.AccessToken

	rawBookings, err := a.listBookings(ctx, token, window, integration.AccountRef)
	if err != nil {
		return domain.FetchResult{}, err
	}

	bookings := make([]bookingDTO, 0, len(rawBookings))
	customerIDs := make([]string, 0)
	variationIDs := make([]string, 0)
	seenCustomers := make(map[string]struct{})
	seenVariations := make(map[string]struct{})
	for _, raw := range rawBookings {
		var b bookingDTO
		if err := json.Unmarshal(raw, &b); err != nil {
			return domain.FetchResult{}, apperr.PermanentInput("decode square booking", err)
		}
		if !active(b.Status) {
			continue
		}
		bookings = append(bookings, b)
		if _, ok := seenCustomers[b.CustomerID]; b.CustomerID != "" && !ok {
			seenCustomers[b.CustomerID] = struct{}{}
			customerIDs = append(customerIDs, b.CustomerID)
		}
		for _, seg := range b.AppointmentSegments {
			if _, ok := seenVariations[seg.ServiceVariationID]; seg.ServiceVariationID != "" && !ok {
				seenVariations[seg.ServiceVariationID] = struct{}{}
				variationIDs = append(variationIDs, seg.ServiceVariationID)
			}
		}
	}

	customers, err := a.retrieveCustomers(ctx, token, customerIDs)
	if err != nil {
		return domain.FetchResult{}, err
	}
	services, err := a.retrieveServices(ctx, token, variationIDs)
	if err != nil {
		return domain.FetchResult{}, err
	}

	out := make([]domain.NormalizedAppointment, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, normalize(b, customers[b.CustomerID], services))
	}

	raw, err := json.Marshal(struct {
		Bookings  []json.RawMessage       `json:"bookings"`
		Customers map[string]*customerDTO `json:"customers"`
	}{rawBookings, customers})
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("encode square raw payload: %w", err)
	}
	return domain.FetchResult{Appointments: out, Raw: raw}, nil
}

func (a *Adapter) listBookings(ctx context.Context, token string, window domain.Window, locationID *string) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", pageLimit))
	q.Set("start_at_min", window.Start.UTC().Format(time.RFC3339))
	q.Set("start_at_max", window.End.AddDate(0, 0, 1).UTC().Format(time.RFC3339))
	if locationID != nil && *locationID != "" {
		q.Set("location_id", *locationID)
	}

	var all []json.RawMessage
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/bookings?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build square request: %w", err)
		}
		body, err := a.api.Do(ctx, token, req)
		if err != nil {
			return nil, err
		}

		var page listBookingsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, apperr.PermanentInput("decode square bookings page", err)
		}
		all = append(all, page.Bookings...)

		if page.Cursor == "" {
			return all, nil
		}
		q.Set("cursor", page.Cursor)
	}
}

func (a *Adapter) retrieveCustomers(ctx context.Context, token string, ids []string) (map[string]*customerDTO, error) {
	out := make(map[string]*customerDTO, len(ids))
	for start := 0; start < len(ids); start += bulkBatchLimit {
		end := min(start+bulkBatchLimit, len(ids))

		var resp bulkCustomersResponse
		if err := a.postJSON(ctx, token, "/customers/bulk-retrieve", map[string]any{"customer_ids": ids[start:end]}, &resp); err != nil {
			return nil, err
		}
		for id, entry := range resp.Responses {
			if entry.Customer != nil {
				out[id] = entry.Customer
			}
		}
	}
	return out, nil
}

func (a *Adapter) retrieveServices(ctx context.Context, token string, ids []string) (map[string]service, error) {
	out := make(map[string]service, len(ids))
	for start := 0; start < len(ids); start += bulkBatchLimit {
		end := min(start+bulkBatchLimit, len(ids))

		var resp catalogResponse
		if err := a.postJSON(ctx, token, "/catalog/batch-retrieve", map[string]any{"object_ids": ids[start:end]}, &resp); err != nil {
			return nil, err
		}
		for _, obj := range resp.Objects {
			if obj.ItemVariationData == nil {
				continue
			}
			svc := service{name: obj.ItemVariationData.Name}
			if obj.ItemVariationData.PriceMoney != nil {
				svc.priceCents = obj.ItemVariationData.PriceMoney.Amount
			}
			out[obj.ID] = svc
		}
	}
	return out, nil
}

func (a *Adapter) postJSON(ctx context.Context, token, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode square request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build square request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := a.api.Do(ctx, token, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.PermanentInput("decode square response "+path, err)
	}
	return nil
}

func active(status string) bool {
	switch {
	case strings.HasPrefix(status, "CANCELLED"), status == "DECLINED", status == "NO_SHOW":
		return false
	default:
		return true
	}
}

func normalize(b bookingDTO, c *customerDTO, services map[string]service) domain.NormalizedAppointment {
	appt := domain.NormalizedAppointment{
		ExternalID: b.ID,
		Notes:      joinNotes(b.CustomerNote, b.SellerNote),
	}

	if at, err := time.Parse(time.RFC3339, b.StartAt); err == nil {
		appt.Datetime = at
		appt.Date = at.UTC().Format(domain.DateLayout)
	}
	if created, err := time.Parse(time.RFC3339, b.CreatedAt); err == nil {
		appt.BookedAt = &created
	}

	names := make([]string, 0, len(b.AppointmentSegments))
	for _, seg := range b.AppointmentSegments {
		svc, ok := services[seg.ServiceVariationID]
		if !ok {
			continue
		}
		appt.PriceCents += svc.priceCents
		if svc.name != "" {
			names = append(names, svc.name)
		}
	}
	appt.ServiceType = strings.Join(names, ", ")

	if c != nil {
		appt.FirstName = optional(c.GivenName)
		appt.LastName = optional(c.FamilyName)
		appt.Email = optional(c.EmailAddress)
		appt.Phone = optional(c.PhoneNumber)
		if normalized, ok := phone.ParseInternational(c.PhoneNumber); ok {
			appt.PhoneNormalized = &normalized
		}
	}
	return appt
}

// joinNotes keeps each note as written, one per line.
func joinNotes(notes ...string) *string {
	kept := make([]string, 0, len(notes))
	for _, n := range notes {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	joined := strings.Join(kept, "\n")
	return &joined
}

func optional(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
