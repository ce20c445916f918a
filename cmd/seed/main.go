package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/tailor-backend/internal/config"
	"github.com/shinyyama/tailor-backend/internal/db"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/pricing"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"gorm.io/gorm"
)

type seedDesign struct {
	ShopUID  string
	Title    string
	Category string
	Tier     string
	BaseAED  int64
	Options  []model.DesignOption
	Workshop model.Address
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, repository.NewDesignRepository(gdb))
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("designs already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	rules := buildRules(cfg.Pricing.DefaultMarginPercent)
	designs := buildDesigns()
	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"pricing_rules", "designs"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		set := repository.NewGormSet(tx)
		if err := set.Rules.Create(ctx, rules); err != nil {
			return fmt.Errorf("insert pricing rules: %w", err)
		}
		for _, d := range designs {
			if err := set.Designs.Create(ctx, d); err != nil {
				return fmt.Errorf("insert design %q: %w", d.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("seeded %d pricing rules and %d designs", len(rules), len(designs))
	return nil
}

// buildRules writes the built-in delivery table out as rows plus a catch-all
// margin rule, so operators edit data instead of code.
func buildRules(marginPercent int64) []model.PricingRule {
	var rules []model.PricingRule
	table := pricing.DefaultDeliveryTable()
	zones := make([]string, 0, len(table))
	for z := range table {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	for _, z := range zones {
		for _, b := range []pricing.Bucket{pricing.B1, pricing.B2, pricing.B3, pricing.B4} {
			rules = append(rules, model.PricingRule{
				Kind:    model.PricingRuleDelivery,
				Zone:    z,
				Bucket:  string(b),
				BaseFee: table[z][b],
				Active:  true,
			})
		}
	}
	rules = append(rules,
		model.PricingRule{Kind: model.PricingRuleMargin, Percent: fmt.Sprint(marginPercent), Active: true},
		model.PricingRule{Kind: model.PricingRuleMargin, Category: "abaya", ShopTier: "gold", Percent: "20", MinimumMargin: 5000, Active: true},
	)
	return rules
}

func buildDesigns() []*model.Design {
	ateliers := []seedDesign{
		{
			ShopUID: "shop-al-noor", Title: "Classic black abaya", Category: "abaya", Tier: "gold", BaseAED: 450,
			Options: []model.DesignOption{
				{ID: "embroidery", Label: "Hand embroidery on sleeves", Cost: 12000},
				{ID: "crystals", Label: "Crystal trim", Cost: 8000},
			},
			Workshop: model.Address{FullName: "Al Noor Atelier", Emirate: "Dubai", Area: "Al Karama", Street: "18B St"},
		},
		{
			ShopUID: "shop-al-noor", Title: "Open front kimono abaya", Category: "abaya", Tier: "gold", BaseAED: 380,
			Options: []model.DesignOption{
				{ID: "lining", Label: "Silk lining", Cost: 9000},
			},
			Workshop: model.Address{FullName: "Al Noor Atelier", Emirate: "Dubai", Area: "Al Karama", Street: "18B St"},
		},
		{
			ShopUID: "shop-sharjah-stitch", Title: "Emirati kandura", Category: "kandura", Tier: "silver", BaseAED: 220,
			Options: []model.DesignOption{
				{ID: "tarboosh", Label: "Tassel (tarboosh)", Cost: 2500},
				{ID: "premium-fabric", Label: "Japanese cotton", Cost: 6000},
			},
			Workshop: model.Address{FullName: "Sharjah Stitch", Emirate: "Sharjah", Area: "Rolla", Street: "Al Arouba St"},
		},
		{
			ShopUID: "shop-sharjah-stitch", Title: "Tailored jalabiya", Category: "jalabiya", Tier: "silver", BaseAED: 300,
			Workshop: model.Address{FullName: "Sharjah Stitch", Emirate: "Sharjah", Area: "Rolla", Street: "Al Arouba St"},
		},
	}
	out := make([]*model.Design, 0, len(ateliers))
	for _, a := range ateliers {
		out = append(out, &model.Design{
			ShopUID:         a.ShopUID,
			Title:           strings.TrimSpace(a.Title),
			Category:        a.Category,
			ShopTier:        a.Tier,
			BaseCost:        a.BaseAED * 100,
			Published:       true,
			Options:         a.Options,
			WorkshopAddress: a.Workshop,
		})
	}
	return out
}

func shouldSeed(ctx context.Context, designs repository.DesignRepository) (bool, error) {
	cnt, err := designs.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count designs: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}
