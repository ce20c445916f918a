package repository

import "gorm.io/gorm"

// Set bundles one implementation of every repository.
type Set struct {
	Orders        OrderRepository
	Jobs          DeliveryJobRepository
	Designs       DesignRepository
	Rules         PricingRuleRepository
	Sequences     SequenceRepository
	Earnings      ShopEarningRepository
	Notifications NotificationRepository
	Reports       ReportRepository
}

// NewGormSet builds MySQL-backed repositories. db may be nil and injected later.
func NewGormSet(db *gorm.DB) Set {
	return Set{
		Orders:        NewOrderRepository(db),
		Jobs:          NewDeliveryJobRepository(db),
		Designs:       NewDesignRepository(db),
		Rules:         NewPricingRuleRepository(db),
		Sequences:     NewSequenceRepository(db),
		Earnings:      NewShopEarningRepository(db),
		Notifications: NewNotificationRepository(db),
		Reports:       NewReportRepository(db),
	}
}

func (s *MemoryStore) Set() Set {
	return Set{
		Orders:        s.Orders(),
		Jobs:          s.Jobs(),
		Designs:       s.Designs(),
		Rules:         s.PricingRules(),
		Sequences:     s.Sequences(),
		Earnings:      s.Earnings(),
		Notifications: s.Notifications(),
		Reports:       s.Reports(),
	}
}

// SetDB injects a connection into every repository of the set.
func (s Set) SetDB(db *gorm.DB) {
	for _, r := range []interface{ SetDB(*gorm.DB) }{
		s.Orders, s.Jobs, s.Designs, s.Rules, s.Sequences, s.Earnings, s.Notifications, s.Reports,
	} {
		r.SetDB(db)
	}
}
