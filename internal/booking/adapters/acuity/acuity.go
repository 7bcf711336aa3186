// Package acuity adapts Acuity Scheduling appointments to the normalized
// booking shape.
package acuity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"retention_backend/internal/booking/adapters/apiclient"
	"retention_backend/internal/booking/domain"
	"retention_backend/platform/apperr"
	"retention_backend/platform/config"
	"retention_backend/platform/sanitize"
)

const (
	datetimeLayout = "2006-01-02T15:04:05-0700"
	// pageMax is the largest page the appointments endpoint serves. A
	// full page means the month may have been cut short.
	pageMax = 5000
)

type appointmentDTO struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Datetime        string    `json:"datetime"`
	DatetimeCreated string    `json:"datetimeCreated"`
	Type            string    `json:"type"`
	Price           string    `json:"price"`
	AmountPaid      string    `json:"amountPaid"`
	Notes           string    `json:"notes"`
	Canceled        bool      `json:"canceled"`
	Forms           []formDTO `json:"forms"`
}

type formDTO struct {
	Name   string         `json:"name"`
	Values []formValueDTO `json:"values"`
}

type formValueDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Adapter fetches appointments from the Acuity REST API.
type Adapter struct {
	baseURL string
	api     *apiclient.Client
}

// New creates an Acuity adapter from configuration.
func New(cfg config.AcuityConfig) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(cfg.GetAcuityBaseURL(), "/"),
		api:     apiclient.New("acuity", cfg.GetAcuityRequestsPerSecond()),
	}
}

// NewWithClient creates an adapter against baseURL using api.
func NewWithClient(baseURL string, api *apiclient.Client) *Adapter {
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), api: api}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformAcuity }

// Fetch returns the non-canceled appointments inside window.
func (a *Adapter) Fetch(ctx context.Context, integration domain.Integration, window domain.Window) (domain.FetchResult, error) {
	if err := apiclient.RequireToken(integration.AccessToken); err != nil {
		return domain.FetchResult{}, err
	}

	q := url.Values{}
	q.Set("minDate", window.StartDate())
	q.Set("maxDate", window.EndDate())
	q.Set("max", strconv.Itoa(pageMax))
	q.Set("direction", "ASC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/appointments?"+q.Encode(), nil)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("build acuity request: %w", err)
	}

	body, err := a.api.Do(ctx, integration.AccessToken, req)
	if err != nil {
		return domain.FetchResult{}, err
	}

	var dtos []appointmentDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return domain.FetchResult{}, apperr.PermanentInput("decode acuity appointments", err)
	}
	if len(dtos) >= pageMax {
		return domain.FetchResult{}, apperr.PermanentInput(
			fmt.Sprintf("acuity returned %d appointments for %s, the page limit; the month cannot be fetched completely", len(dtos), window.StartDate()), nil)
	}

	out := make([]domain.NormalizedAppointment, 0, len(dtos))
	for _, dto := range dtos {
		if dto.Canceled {
			continue
		}
		out = append(out, normalize(dto))
	}
	return domain.FetchResult{Appointments: out, Raw: body}, nil
}

func normalize(dto appointmentDTO) domain.NormalizedAppointment {
	appt := domain.NormalizedAppointment{
		ExternalID:     strconv.FormatInt(dto.ID, 10),
		Email:          optional(dto.Email),
		Phone:          optional(dto.Phone),
		FirstName:      optional(dto.FirstName),
		LastName:       optional(dto.LastName),
		ServiceType:    strings.TrimSpace(dto.Type),
		Notes:          optional(dto.Notes),
		ReferralSource: referralSource(dto.Forms),
	}
	appt.PhoneNormalized = domain.NormalizePhone(appt.Phone)

	// A bad datetime leaves Date empty so the resolver counts it as invalid.
	if at, err := time.Parse(datetimeLayout, dto.Datetime); err == nil {
		appt.Datetime = at
		appt.Date = at.Format(domain.DateLayout)
	}
	if created, err := time.Parse(datetimeLayout, dto.DatetimeCreated); err == nil {
		appt.BookedAt = &created
	}

	price := cents(dto.Price)
	paid := cents(dto.AmountPaid)
	appt.PriceCents = price
	if paid > price {
		appt.TipCents = paid - price
	}
	return appt
}

// referralSource picks the first non-empty intake answer whose field asks
// where the client heard about the business.
func referralSource(forms []formDTO) *string {
	for _, form := range forms {
		for _, v := range form.Values {
			name := strings.ToLower(v.Name)
			if strings.Contains(name, "hear") || strings.Contains(name, "referral") || strings.Contains(name, "source") {
				if answer := sanitize.Optional(v.Value, 0); answer != nil {
					return answer
				}
			}
		}
	}
	return nil
}

func cents(amount string) int64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}

func optional(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
