package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/libraryhub/backend/internal/models"
	"github.com/spf13/viper"
)

// CirculationConfig holds the borrowing policy knobs
type CirculationConfig struct {
	BorrowLimit           int          `validate:"gte=1"`
	LoanPeriodDays        int          `validate:"gte=1"`
	FineRate              models.Money `validate:"gte=0"` // per overdue day, in cents
	DueSoonDays           int          `validate:"gte=0"`
	PreventDuplicateLoans bool
}

// DefaultCirculationConfig returns the stock library policy
func DefaultCirculationConfig() CirculationConfig {
	return CirculationConfig{
		BorrowLimit:           3,
		LoanPeriodDays:        14,
		FineRate:              500,
		DueSoonDays:           3,
		PreventDuplicateLoans: true,
	}
}

// LoanPeriod is the time from borrow to due date
func (c CirculationConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

// DueSoonWindow is how far ahead of a due date a loan is flagged
func (c CirculationConfig) DueSoonWindow() time.Duration {
	return time.Duration(c.DueSoonDays) * 24 * time.Hour
}

// LoadCirculationConfig reads the circulation.* keys, falling back to defaults
func LoadCirculationConfig() (CirculationConfig, error) {
	def := DefaultCirculationConfig()
	viper.SetDefault("circulation.borrow_limit", def.BorrowLimit)
	viper.SetDefault("circulation.loan_period_days", def.LoanPeriodDays)
	viper.SetDefault("circulation.fine_rate", def.FineRate.String())
	viper.SetDefault("circulation.due_soon_days", def.DueSoonDays)
	viper.SetDefault("circulation.prevent_duplicate_loans", def.PreventDuplicateLoans)

	fineRate, err := models.ParseMoney(viper.GetString("circulation.fine_rate"))
	if err != nil {
		return CirculationConfig{}, fmt.Errorf("circulation.fine_rate: %w", err)
	}

	cfg := CirculationConfig{
		BorrowLimit:           viper.GetInt("circulation.borrow_limit"),
		LoanPeriodDays:        viper.GetInt("circulation.loan_period_days"),
		FineRate:              fineRate,
		DueSoonDays:           viper.GetInt("circulation.due_soon_days"),
		PreventDuplicateLoans: viper.GetBool("circulation.prevent_duplicate_loans"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return CirculationConfig{}, fmt.Errorf("invalid circulation config: %w", err)
	}
	return cfg, nil
}
