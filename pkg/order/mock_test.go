package order

import (
	"context"
	"errors"
	"sync"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockAPI struct {
	mu        sync.Mutex
	orders    []Order
	setErr    error
	listErr   error
	setCalls  int
	listCalls int

	// beforeList runs after the response was captured, without the lock held.
	beforeList func(call int)
	beforeSet  func()
}

func newMockAPI(orders ...Order) *mockAPI {
	return &mockAPI{orders: orders}
}

func (m *mockAPI) ListOrders(ctx context.Context) ([]Order, error) {
	m.mu.Lock()
	m.listCalls++
	call := m.listCalls
	snapshot := append([]Order(nil), m.orders...)
	err := m.listErr
	hook := m.beforeList
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (m *mockAPI) SetOrderStatus(ctx context.Context, id string, status Status) (*Order, error) {
	m.mu.Lock()
	hook := m.beforeSet
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return nil, m.setErr
	}
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = status
			m.orders[i].UpdatedAt = m.orders[i].UpdatedAt.Add(time.Minute)
			o := m.orders[i]
			return &o, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockAPI) setStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = status
			m.orders[i].UpdatedAt = m.orders[i].UpdatedAt.Add(time.Minute)
		}
	}
}

func (m *mockAPI) calls() (set, list int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls, m.listCalls
}

func newOrder(id string, status Status, method PaymentMethod, payment PaymentStatus) Order {
	return Order{
		ID:            id,
		Status:        status,
		PaymentMethod: method,
		PaymentStatus: payment,
		Customer:      Party{ID: "c1", Name: "Customer"},
		Vendor:        Party{ID: "v1", Name: "Vendor"},
		Items:         []Item{{Name: "Momo", Quantity: 2, Price: 150}},
		TotalAmount:   300,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}
