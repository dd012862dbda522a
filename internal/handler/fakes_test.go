package handler_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// memDB backs the in-memory stores with the same rules as the MySQL
// repositories.
type memDB struct {
	mu       sync.Mutex
	nextID   uint64
	users    map[uint64]model.User
	tokens   map[string]tokenRow
	products map[uint64]model.Product
	orders   map[uint64]model.Order
}

type tokenRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

func newMemDB() *memDB {
	return &memDB{
		nextID:   100,
		users:    map[uint64]model.User{},
		tokens:   map[string]tokenRow{},
		products: map[uint64]model.Product{},
		orders:   map[uint64]model.Order{},
	}
}

func (db *memDB) id() uint64 { db.nextID++; return db.nextID }

// ----- users -----

type fakeUsers struct{ db *memDB }

func (f fakeUsers) Create(_ context.Context, u model.User, password string, cost int) (uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, existing := range f.db.users {
		if existing.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u.ID = f.db.id()
	u.PasswordHash = hash
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	f.db.users[u.ID] = u
	return u.ID, nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range f.db.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f fakeUsers) List(_ context.Context) ([]model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]model.User, 0, len(f.db.users))
	for _, u := range f.db.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeUsers) Update(_ context.Context, id uint64, in repository.UserUpdate, cost int) (model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	if in.Email != nil {
		for _, other := range f.db.users {
			if other.ID != id && other.Email == *in.Email {
				return model.User{}, repository.ErrEmailExists
			}
		}
		u.Email = *in.Email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password, cost)
		if err != nil {
			return model.User{}, err
		}
		u.PasswordHash = hash
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.Address != nil {
		u.Address = *in.Address
	}
	f.db.users[id] = u
	return u, nil
}

func (f fakeUsers) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	for _, o := range f.db.orders {
		if o.UserID == id {
			return repository.ErrConflict
		}
	}
	delete(f.db.users, id)
	return nil
}

// ----- refresh tokens -----

type fakeTokens struct{ db *memDB }

func (f fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.tokens[hash] = tokenRow{userID: userID, exp: exp}
	return nil
}

func (f fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tokens[hash]
	if !ok || t.revoked || time.Now().After(t.exp) {
		return 0, repository.ErrTokenInvalid
	}
	return t.userID, nil
}

func (f fakeTokens) RevokeByHash(_ context.Context, hash string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tokens[hash]
	if !ok || t.revoked {
		return repository.ErrTokenInvalid
	}
	t.revoked = true
	f.db.tokens[hash] = t
	return nil
}

// staleTokens answers ValidateRefresh from a snapshot taken before any
// revocation, the view a concurrent request gets.
type staleTokens struct {
	fakeTokens
}

func (f staleTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tokens[hash]
	if !ok {
		return 0, repository.ErrTokenInvalid
	}
	return t.userID, nil
}

func (f fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for h, t := range f.db.tokens {
		if t.userID == userID {
			t.revoked = true
			f.db.tokens[h] = t
		}
	}
	return nil
}

// ----- products -----

type fakeProducts struct{ db *memDB }

func (f fakeProducts) Create(_ context.Context, p model.Product) (uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p.ID = f.db.id()
	p.CreatedAt, p.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	f.db.products[p.ID] = p
	return p.ID, nil
}

func (f fakeProducts) GetByID(_ context.Context, id uint64) (model.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	return p, nil
}

func (f fakeProducts) GetByIDs(_ context.Context, ids []uint64) (map[uint64]model.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := map[uint64]model.Product{}
	for _, id := range ids {
		if p, ok := f.db.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f fakeProducts) List(_ context.Context, q repository.ProductQuery) ([]model.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []model.Product{}
	for _, p := range f.db.products {
		if q.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Search)) {
			continue
		}
		if q.Category != "" && !strings.EqualFold(p.Category, q.Category) {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		switch q.Sort {
		case repository.SortPriceAsc:
			return out[i].Price.LessThan(out[j].Price)
		case repository.SortPriceDesc:
			return out[i].Price.GreaterThan(out[j].Price)
		case repository.SortNameAsc:
			return out[i].Name < out[j].Name
		case repository.SortNameDesc:
			return out[i].Name > out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f fakeProducts) Categories(_ context.Context) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, p := range f.db.products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f fakeProducts) Update(_ context.Context, id uint64, in repository.ProductUpdate) (model.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	f.db.products[id] = p
	return p, nil
}

func (f fakeProducts) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	for _, o := range f.db.orders {
		if o.ProductID == id {
			return repository.ErrConflict
		}
	}
	delete(f.db.products, id)
	return nil
}

// ----- orders -----

type fakeOrders struct{ db *memDB }

func (f fakeOrders) Place(_ context.Context, userID uint64, lines []repository.OrderLine) ([]model.Order, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.users[userID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	remaining := map[uint64]int{}
	for _, l := range lines {
		p, ok := f.db.products[l.ProductID]
		if !ok {
			return nil, &repository.ProductMissingError{ID: l.ProductID}
		}
		if _, seen := remaining[p.ID]; !seen {
			remaining[p.ID] = p.Stock
		}
		if remaining[p.ID] < l.Quantity {
			return nil, &repository.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: remaining[p.ID], Requested: l.Quantity}
		}
		remaining[p.ID] -= l.Quantity
	}
	ref := uuid.NewString()
	now := time.Now().UTC()
	out := make([]model.Order, 0, len(lines))
	for _, l := range lines {
		p := f.db.products[l.ProductID]
		p.Stock -= l.Quantity
		f.db.products[p.ID] = p
		o := model.Order{
			ID: f.db.id(), UserID: userID, ProductID: p.ID, Quantity: l.Quantity, UnitPrice: p.Price,
			Status: model.OrderPending, CheckoutRef: ref, CreatedAt: now, UpdatedAt: now,
		}
		f.db.orders[o.ID] = o
		out = append(out, o)
	}
	return out, nil
}

func (f fakeOrders) detail(o model.Order) model.OrderDetail {
	p, u := f.db.products[o.ProductID], f.db.users[o.UserID]
	return model.OrderDetail{Order: o, ProductName: p.Name, ProductCategory: p.Category, UserName: u.Name, UserEmail: u.Email}
}

func (f fakeOrders) list(keep func(model.Order) bool) []model.OrderDetail {
	out := []model.OrderDetail{}
	for _, o := range f.db.orders {
		if keep(o) {
			out = append(out, f.detail(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f fakeOrders) List(_ context.Context) ([]model.OrderDetail, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.list(func(model.Order) bool { return true }), nil
}

func (f fakeOrders) ListByUser(_ context.Context, userID uint64) ([]model.OrderDetail, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.list(func(o model.Order) bool { return o.UserID == userID }), nil
}

func (f fakeOrders) GetByID(_ context.Context, id uint64) (model.OrderDetail, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return model.OrderDetail{}, repository.ErrOrderNotFound
	}
	return f.detail(o), nil
}

func (f fakeOrders) restock(o model.Order) {
	p := f.db.products[o.ProductID]
	p.Stock += o.Quantity
	f.db.products[p.ID] = p
}

func (f fakeOrders) UpdateStatus(_ context.Context, id uint64, status string) (repository.StatusChange, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return repository.StatusChange{}, repository.ErrOrderNotFound
	}
	change := repository.StatusChange{OrderID: id, UserID: o.UserID, From: o.Status, To: status}
	if o.Status == status {
		return change, nil
	}
	if o.Status == model.OrderCancelled {
		return repository.StatusChange{}, repository.ErrConflict
	}
	if status == model.OrderCancelled {
		f.restock(o)
	}
	o.Status = status
	f.db.orders[id] = o
	return change, nil
}

func (f fakeOrders) CancelForUser(_ context.Context, id, userID uint64) (repository.StatusChange, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	switch {
	case !ok:
		return repository.StatusChange{}, repository.ErrOrderNotFound
	case o.UserID != userID:
		return repository.StatusChange{}, repository.ErrForbidden
	case o.Status != model.OrderPending:
		return repository.StatusChange{}, repository.ErrNotPending
	}
	f.restock(o)
	o.Status = model.OrderCancelled
	f.db.orders[id] = o
	return repository.StatusChange{OrderID: id, UserID: userID, From: model.OrderPending, To: model.OrderCancelled}, nil
}

func (f fakeOrders) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status == model.OrderPending {
		f.restock(o)
	}
	delete(f.db.orders, id)
	return nil
}

func (f fakeOrders) Stats(_ context.Context) ([]model.OrderStat, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []model.OrderStat{}
	for _, status := range model.OrderStatuses {
		s := model.OrderStat{Status: status}
		for _, o := range f.db.orders {
			if o.Status == status {
				s.Count++
				s.TotalQuantity += o.Quantity
			}
		}
		if s.Count > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// ----- side effects -----

type fakeEvents struct {
	mu      sync.Mutex
	placed  []queue.OrderPlacedEvent
	changed []queue.OrderStatusChangedEvent
}

func (f *fakeEvents) PublishOrderPlaced(_ context.Context, ev queue.OrderPlacedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, ev)
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(_ context.Context, ev queue.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, ev)
	return nil
}

func (f *fakeEvents) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed), len(f.changed)
}

type fakePurger struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePurger) Purge(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
