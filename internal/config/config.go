package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide configuration, read once at startup and
// passed explicitly into the services. Read-only after Load.
type Config struct {
	BotToken      string        `envconfig:"BOT_TOKEN" required:"true"`
	ChannelID     int64         `envconfig:"PRIVATE_CHANNEL_ID" required:"true"`
	AdminIDs      []int64       `envconfig:"ADMIN_IDS"`
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	Port          string        `envconfig:"PORT" default:"3333"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"24h"`

	// Payment details shown to users during plan selection. Purely
	// informational: approval is always a manual admin decision.
	PaymentAccount   string `envconfig:"TELEBIRR_ACCOUNT"`
	PriceOneMonth    int    `envconfig:"PRICE_1_MONTH" default:"700"`
	PriceTwoMonths   int    `envconfig:"PRICE_2_MONTHS" default:"1400"`
	PriceThreeMonths int    `envconfig:"PRICE_3_MONTHS" default:"2000"`

	// Clerk user IDs allowed to use the admin HTTP API, each linked to
	// the Telegram admin identity it acts as ("clerkID:telegramID,...").
	AdminClerkLinks map[string]int64 `envconfig:"ADMIN_CLERK_LINKS"`

	// Optional FCM device tokens for admin push alerts.
	AdminDeviceTokens []string `envconfig:"ADMIN_DEVICE_TOKENS"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS must list at least one Telegram admin ID")
	}
	return &cfg, nil
}

// IsAdmin reports whether the Telegram user ID is an authorized admin.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AdminForClerkID resolves a Clerk dashboard identity to the Telegram
// admin identity it acts as. The second return is false for unknown IDs.
func (c *Config) AdminForClerkID(clerkID string) (int64, bool) {
	id, ok := c.AdminClerkLinks[clerkID]
	return id, ok
}

// PriceFor returns the price of a plan tier. The second return is false
// for month counts that are not offered as a tier.
func (c *Config) PriceFor(months int) (int, bool) {
	switch months {
	case 1:
		return c.PriceOneMonth, true
	case 2:
		return c.PriceTwoMonths, true
	case 3:
		return c.PriceThreeMonths, true
	}
	return 0, false
}

// PlanMonths lists the offered plan tiers in display order.
func (c *Config) PlanMonths() []int {
	return []int{1, 2, 3}
}
