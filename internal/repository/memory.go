package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shinyyama/tailor-backend/internal/model"
	"gorm.io/gorm"
)

// MemoryStore is a process-local backend with the same locking and commit
// semantics as the MySQL repositories. It backs STORE=memory and the tests.
type MemoryStore struct {
	mu            sync.Mutex
	orderLocks    map[uint64]*sync.Mutex
	orders        map[uint64]*model.Order
	jobs          map[uint64]*model.DeliveryJob
	designs       map[uint64]*model.Design
	rules         []model.PricingRule
	events        map[string]uint64
	earnings      map[string]*model.ShopEarning
	sequences     map[string]uint64
	notifications []model.Notification
	nextID        map[string]uint64
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orderLocks: map[uint64]*sync.Mutex{},
		orders:     map[uint64]*model.Order{},
		jobs:       map[uint64]*model.DeliveryJob{},
		designs:    map[uint64]*model.Design{},
		events:     map[string]uint64{},
		earnings:   map[string]*model.ShopEarning{},
		sequences:  map[string]uint64{},
		nextID:     map[string]uint64{},
		now:        time.Now,
	}
}

func (s *MemoryStore) Orders() OrderRepository               { return &memOrders{s: s} }
func (s *MemoryStore) Jobs() DeliveryJobRepository           { return &memJobs{s: s} }
func (s *MemoryStore) Designs() DesignRepository             { return &memDesigns{s: s} }
func (s *MemoryStore) PricingRules() PricingRuleRepository   { return &memRules{s: s} }
func (s *MemoryStore) Sequences() SequenceRepository         { return &memSequences{s: s} }
func (s *MemoryStore) Earnings() ShopEarningRepository       { return &memEarnings{s: s} }
func (s *MemoryStore) Notifications() NotificationRepository { return &memNotifications{s: s} }
func (s *MemoryStore) Reports() ReportRepository             { return &memReports{s: s} }

// id must be called with s.mu held.
func (s *MemoryStore) id(table string) uint64 {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *MemoryStore) lockFor(orderID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.orderLocks[orderID]
	if !ok {
		l = &sync.Mutex{}
		s.orderLocks[orderID] = l
	}
	return l
}

func eventKey(source, id string) string {
	return source + "\x00" + id
}

type memOrders struct{ s *MemoryStore }

func (r *memOrders) SetDB(*gorm.DB) {}

func (r *memOrders) Create(_ context.Context, o *model.Order) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.Number == o.Number {
			return gorm.ErrDuplicatedKey
		}
	}
	now := s.now()
	o.ID = s.id("orders")
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Timeline {
		o.Timeline[i].ID = s.id("timeline")
		o.Timeline[i].OrderID = o.ID
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id uint64) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (r *memOrders) FindByNumber(_ context.Context, number string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Number == number {
			return o.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memOrders) List(_ context.Context, f OrderFilter) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.Order
	for _, o := range r.s.orders {
		if f.CustomerUID != "" && o.CustomerUID != f.CustomerUID {
			continue
		}
		if f.ShopUID != "" && o.ShopUID != f.ShopUID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		list = append(list, *o.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func (r *memOrders) Mutate(_ context.Context, id uint64, fn func(tx OrderTx) error) (*model.Order, error) {
	s := r.s
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	stored, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	tx := &memTx{s: s, order: stored.Clone(), claimed: map[string]bool{}, credits: map[string]int64{}}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return tx.order.Clone(), nil
}

type memTx struct {
	s          *MemoryStore
	order      *model.Order
	jobs       []*model.DeliveryJob
	jobsLoaded bool
	claimed    map[string]bool
	credits    map[string]int64
}

func (t *memTx) Order() *model.Order {
	return t.order
}

func (t *memTx) Jobs() ([]*model.DeliveryJob, error) {
	if t.jobsLoaded {
		return t.jobs, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, j := range t.s.jobs {
		if j.OrderID == t.order.ID {
			t.jobs = append(t.jobs, j.Clone())
		}
	}
	sort.Slice(t.jobs, func(i, j int) bool { return t.jobs[i].ID < t.jobs[j].ID })
	t.jobsLoaded = true
	return t.jobs, nil
}

func (t *memTx) AddJob(j *model.DeliveryJob) error {
	if _, err := t.Jobs(); err != nil {
		return err
	}
	t.s.mu.Lock()
	for _, existing := range t.s.jobs {
		if existing.Number == j.Number {
			t.s.mu.Unlock()
			return gorm.ErrDuplicatedKey
		}
	}
	j.ID = t.s.id("delivery_jobs")
	t.s.mu.Unlock()
	j.OrderID = t.order.ID
	t.jobs = append(t.jobs, j)
	return nil
}

func (t *memTx) ClaimEvent(source, externalID string) (bool, error) {
	key := eventKey(source, externalID)
	if t.claimed[key] {
		return false, nil
	}
	t.s.mu.Lock()
	_, seen := t.s.events[key]
	t.s.mu.Unlock()
	if seen {
		return false, nil
	}
	t.claimed[key] = true
	return true, nil
}

func (t *memTx) CreditShop(shopUID string, amount int64) error {
	t.credits[shopUID] += amount
	return nil
}

// NextSequence is not rolled back with the transaction; gaps are allowed.
func (t *memTx) NextSequence(name string) (uint64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.sequences[name]++
	return t.s.sequences[name], nil
}

func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range t.claimed {
		if _, seen := s.events[key]; seen {
			return gorm.ErrDuplicatedKey
		}
	}
	now := s.now()
	t.order.UpdatedAt = now
	for i := range t.order.Timeline {
		if t.order.Timeline[i].ID == 0 {
			t.order.Timeline[i].ID = s.id("timeline")
			t.order.Timeline[i].OrderID = t.order.ID
		}
	}
	s.orders[t.order.ID] = t.order.Clone()
	for _, j := range t.jobs {
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		j.UpdatedAt = now
		for i := range j.Events {
			if j.Events[i].ID == 0 {
				j.Events[i].ID = s.id("job_events")
				j.Events[i].JobID = j.ID
			}
		}
		s.jobs[j.ID] = j.Clone()
	}
	for key := range t.claimed {
		s.events[key] = t.order.ID
	}
	for uid, amount := range t.credits {
		e, ok := s.earnings[uid]
		if !ok {
			e = &model.ShopEarning{ShopUID: uid, CreatedAt: now}
			s.earnings[uid] = e
		}
		e.ReleasedFils += amount
		e.OrderCount++
		e.UpdatedAt = now
	}
	return nil
}

type memJobs struct{ s *MemoryStore }

func (r *memJobs) SetDB(*gorm.DB) {}

func (r *memJobs) FindByID(_ context.Context, id uint64) (*model.DeliveryJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (r *memJobs) List(_ context.Context, f JobFilter) ([]model.DeliveryJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.DeliveryJob
	for _, j := range r.s.jobs {
		if f.OrderID != 0 && j.OrderID != f.OrderID {
			continue
		}
		if f.PartnerUID != "" && j.PartnerUID != f.PartnerUID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		list = append(list, *j.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

type memDesigns struct{ s *MemoryStore }

func (r *memDesigns) SetDB(*gorm.DB) {}

func (r *memDesigns) Create(_ context.Context, d *model.Design) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == 0 {
		d.ID = r.s.id("designs")
	}
	cp := *d
	cp.Options = append([]model.DesignOption(nil), d.Options...)
	r.s.designs[d.ID] = &cp
	return nil
}

func (r *memDesigns) FindByID(_ context.Context, id uint64) (*model.Design, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.designs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	cp.Options = append([]model.DesignOption(nil), d.Options...)
	return &cp, nil
}

func (r *memDesigns) Count(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.designs)), nil
}

type memRules struct{ s *MemoryStore }

func (r *memRules) SetDB(*gorm.DB) {}

func (r *memRules) ListActive(context.Context) ([]model.PricingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.PricingRule
	for _, rule := range r.s.rules {
		if rule.Active {
			list = append(list, rule)
		}
	}
	return list, nil
}

func (r *memRules) Create(_ context.Context, rules []model.PricingRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rule := range rules {
		if rule.ID == 0 {
			rule.ID = r.s.id("pricing_rules")
		}
		r.s.rules = append(r.s.rules, rule)
	}
	return nil
}

type memSequences struct{ s *MemoryStore }

func (r *memSequences) SetDB(*gorm.DB) {}

func (r *memSequences) Next(_ context.Context, name string) (uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sequences[name]++
	return r.s.sequences[name], nil
}

type memEarnings struct{ s *MemoryStore }

func (r *memEarnings) SetDB(*gorm.DB) {}

func (r *memEarnings) Get(_ context.Context, shopUID string) (*model.ShopEarning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.earnings[shopUID]; ok {
		cp := *e
		return &cp, nil
	}
	return &model.ShopEarning{ShopUID: shopUID}, nil
}
