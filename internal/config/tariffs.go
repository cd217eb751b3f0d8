package config

import (
	"github.com/spf13/viper"
	"github.com/vpnvault/backend/internal/models"
)

const gib = 1024 * 1024 * 1024

// TariffCatalog is the static tariff catalog. Entries are read once at
// startup; prices are minor currency units.
type TariffCatalog struct {
	tariffs map[string]models.Tariff
	order   []string
}

func LoadTariffCatalog() *TariffCatalog {
	viper.SetDefault("tariffs.trial.price", 0)
	viper.SetDefault("tariffs.trial.days", 30)
	viper.SetDefault("tariffs.trial.limit_gb", 5)
	viper.SetDefault("tariffs.1month.price", 15000)
	viper.SetDefault("tariffs.1month.days", 30)
	viper.SetDefault("tariffs.1month.limit_gb", 100)
	viper.SetDefault("tariffs.3months.price", 40000)
	viper.SetDefault("tariffs.3months.days", 90)
	viper.SetDefault("tariffs.3months.limit_gb", 100)
	viper.SetDefault("tariffs.6months.price", 60000)
	viper.SetDefault("tariffs.6months.days", 180)
	viper.SetDefault("tariffs.6months.limit_gb", 100)

	c := &TariffCatalog{
		tariffs: make(map[string]models.Tariff),
		order:   []string{"trial", "1month", "3months", "6months"},
	}

	names := map[string]string{
		"trial":   "Trial",
		"1month":  "1 Month",
		"3months": "3 Months",
		"6months": "6 Months",
	}

	for _, id := range c.order {
		c.tariffs[id] = models.Tariff{
			ID:             id,
			DisplayName:    names[id],
			Price:          viper.GetInt64("tariffs." + id + ".price"),
			DurationDays:   viper.GetInt("tariffs." + id + ".days"),
			DataLimitBytes: viper.GetInt64("tariffs."+id+".limit_gb") * gib,
			IsTrial:        id == "trial",
		}
	}

	return c
}

// NewTariffCatalog builds a catalog from explicit entries; used by tests.
func NewTariffCatalog(tariffs ...models.Tariff) *TariffCatalog {
	c := &TariffCatalog{tariffs: make(map[string]models.Tariff)}
	for _, t := range tariffs {
		c.tariffs[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c
}

func (c *TariffCatalog) Get(id string) (models.Tariff, bool) {
	t, ok := c.tariffs[id]
	return t, ok
}

func (c *TariffCatalog) List() []models.Tariff {
	out := make([]models.Tariff, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tariffs[id])
	}
	return out
}
