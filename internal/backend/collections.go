package backend

import (
	"context"
	"net/http"

	"waste-portal/internal/model"
)

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, "list_users", http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ListPayments(ctx context.Context) ([]model.Payment, error) {
	var payments []model.Payment
	if err := c.do(ctx, "list_payments", http.MethodGet, "/payments", nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// CreatePayment posts p and returns the stored record. A backend that answers
// without a body yields p unchanged.
func (c *Client) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	created := p
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", p, &created); err != nil {
		return model.Payment{}, err
	}
	return created, nil
}

func (c *Client) UpdatePayment(ctx context.Context, id string, p model.Payment) error {
	if err := CheckID(id); err != nil {
		return err
	}
	return c.do(ctx, "update_payment", http.MethodPut, itemPath("payments", id), p, nil)
}

func (c *Client) DeletePayment(ctx context.Context, id string) error {
	if err := CheckID(id); err != nil {
		return err
	}
	return c.do(ctx, "delete_payment", http.MethodDelete, itemPath("payments", id), nil, nil)
}

func (c *Client) ListUserPayments(ctx context.Context) ([]model.UserPayment, error) {
	var payments []model.UserPayment
	if err := c.do(ctx, "list_user_payments", http.MethodGet, "/userpayments", nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (c *Client) ListWasteTypes(ctx context.Context) ([]model.WasteType, error) {
	var types []model.WasteType
	if err := c.do(ctx, "list_waste_types", http.MethodGet, "/types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

func (c *Client) ListWasteRecords(ctx context.Context) ([]model.WasteRecord, error) {
	var records []model.WasteRecord
	if err := c.do(ctx, "list_waste_records", http.MethodGet, "/wastecollection", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) CreateSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error) {
	created := s
	if err := c.do(ctx, "create_schedule", http.MethodPost, "/schedules", s, &created); err != nil {
		return model.Schedule{}, err
	}
	return created, nil
}

func (c *Client) UpdateSchedule(ctx context.Context, id string, s model.Schedule) error {
	if err := CheckID(id); err != nil {
		return err
	}
	return c.do(ctx, "update_schedule", http.MethodPut, itemPath("schedules", id), s, nil)
}

func (c *Client) GetSchedule(ctx context.Context, id string) (model.Schedule, error) {
	if err := CheckID(id); err != nil {
		return model.Schedule{}, err
	}
	var s model.Schedule
	if err := c.do(ctx, "get_schedule", http.MethodGet, itemPath("schedules", id), nil, &s); err != nil {
		return model.Schedule{}, err
	}
	return s, nil
}
